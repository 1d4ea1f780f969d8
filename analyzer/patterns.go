package analyzer

import (
	"fmt"
	"regexp"
)

// hostCoreSymbols is the fixed allow-list of host platform symbols that a
// module may legitimately reference or wrap. Matches against these are
// never reported as conflicts; they would otherwise drown real collisions
// in false positives.
var hostCoreSymbols = map[string]struct{}{}

func init() {
	for _, s := range []string{
		"add_action", "remove_action", "do_action", "has_action",
		"add_filter", "remove_filter", "apply_filters", "has_filter",
		"add_menu_page", "add_submenu_page", "add_options_page", "add_theme_page",
		"add_plugins_page", "add_users_page", "add_management_page", "add_media_page",
		"register_post_type", "register_taxonomy", "register_widget", "register_sidebar",
		"wp_enqueue_script", "wp_enqueue_style", "wp_register_script", "wp_register_style",
		"get_option", "update_option", "delete_option", "add_option",
		"get_post_meta", "update_post_meta", "delete_post_meta", "add_post_meta",
		"wp_insert_post", "wp_update_post", "wp_delete_post", "get_posts",
		"wp_send_json", "wp_send_json_success", "wp_send_json_error",
		"wp_nonce_field", "wp_verify_nonce", "check_ajax_referer",
		"current_user_can", "is_admin", "is_user_logged_in",
		"esc_html", "esc_attr", "esc_url", "sanitize_text_field",
		"wp_die", "wp_redirect", "admin_url", "home_url", "site_url",
		"get_template_directory", "get_stylesheet_directory",
		"wp_remote_get", "wp_remote_post", "wp_remote_request",
		"wp_mkdir_p", "wp_upload_dir", "wp_get_attachment_url",
	} {
		hostCoreSymbols[s] = struct{}{}
	}
}

// ContentCheck is one independent pass of the advisory content pipeline.
// Checks produce zero or more tagged findings and never block on their
// own; the caller decides what severity means.
type ContentCheck interface {
	Name() string
	Run(content []byte) []Finding
}

type dangerousPattern struct {
	label   string
	pattern *regexp.Regexp
}

// dangerousCallCheck flags high-risk call idioms: dynamic code
// evaluation, shell and process execution, and remote fetch-and-run.
// Obfuscated calls will slip through and legitimate uses will be flagged;
// the contract is a best-effort advisory signal, not enforcement.
type dangerousCallCheck struct {
	patterns []dangerousPattern
}

func (dangerousCallCheck) Name() string { return "dangerous_calls" }

func (c dangerousCallCheck) Run(content []byte) []Finding {
	var findings []Finding
	for _, p := range c.patterns {
		if p.pattern.Match(content) {
			findings = append(findings, Finding{
				Type:       "dangerous_function",
				Message:    fmt.Sprintf("Potentially dangerous function detected: %s", p.label),
				Suggestion: "Review the call and confirm it is intentional before activating this module.",
			})
		}
	}
	return findings
}

func defaultContentChecks() []ContentCheck {
	calls := []string{
		"eval", "base64_decode", "system", "exec", "shell_exec",
		"passthru", "proc_open", "popen", "curl_exec", "curl_multi_exec",
		"parse_ini_file", "show_source",
	}
	check := dangerousCallCheck{}
	for _, name := range calls {
		check.patterns = append(check.patterns, dangerousPattern{
			label:   name,
			pattern: regexp.MustCompile(`(?i)` + name + `\s*\(`),
		})
	}
	// Remote fetch-and-run idiom.
	check.patterns = append(check.patterns, dangerousPattern{
		label:   "file_get_contents(http...)",
		pattern: regexp.MustCompile(`(?i)file_get_contents\s*\(\s*['"]http`),
	})
	return []ContentCheck{check}
}

// tokenize runs a lightweight lexical pass over the source: it walks the
// file respecting string literals and comments and verifies that both
// terminate and that braces balance. It is intentionally forgiving; the
// interpreter lint is the authoritative syntax check.
func tokenize(content []byte) error {
	depth := 0
	i := 0
	n := len(content)
	for i < n {
		ch := content[i]
		switch ch {
		case '\'', '"':
			quote := ch
			i++
			for i < n && content[i] != quote {
				if content[i] == '\\' {
					i++
				}
				i++
			}
			if i >= n {
				return fmt.Errorf("unterminated %c-quoted string", quote)
			}
		case '/':
			if i+1 < n && content[i+1] == '/' {
				for i < n && content[i] != '\n' {
					i++
				}
				continue
			}
			if i+1 < n && content[i+1] == '*' {
				end := false
				for i = i + 2; i+1 < n; i++ {
					if content[i] == '*' && content[i+1] == '/' {
						i++
						end = true
						break
					}
				}
				if !end {
					return fmt.Errorf("unterminated block comment")
				}
			}
		case '#':
			for i < n && content[i] != '\n' {
				i++
			}
			continue
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced closing brace")
			}
		}
		i++
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced braces (depth %d at end of file)", depth)
	}
	return nil
}
