package config

import (
	"os"

	"emperror.dev/errors"
	"gopkg.in/yaml.v3"
)

// ReadRawConfig reads the configuration file as raw YAML text, preserving
// any comments the operator added.
func ReadRawConfig(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: failed to read config file")
	}
	return b, nil
}

// WriteRawConfig writes raw YAML content to the configuration file.
func WriteRawConfig(path string, content []byte) error {
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return errors.Wrap(err, "config: failed to write config file")
	}
	return nil
}

// MergeConfigWithRaw merges a Configuration struct into raw YAML content.
// The raw file's node tree is kept as the skeleton so comments survive the
// round trip; only scalar values and sequences are replaced.
func MergeConfigWithRaw(rawYAML []byte, cfg *Configuration) ([]byte, error) {
	var rootNode yaml.Node
	if err := yaml.Unmarshal(rawYAML, &rootNode); err != nil {
		// Unparseable original, fall back to marshaling the struct.
		return yaml.Marshal(cfg)
	}

	updatedBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "config: failed to marshal updated config")
	}

	var updatedNode yaml.Node
	if err := yaml.Unmarshal(updatedBytes, &updatedNode); err != nil {
		return nil, errors.Wrap(err, "config: failed to parse updated config")
	}

	mergeNodes(&rootNode, &updatedNode)

	result, err := yaml.Marshal(&rootNode)
	if err != nil {
		return nil, errors.Wrap(err, "config: failed to marshal merged config")
	}
	return result, nil
}

// mergeNodes recursively merges updatedNode values into rootNode while
// keeping the comments and ordering of rootNode.
func mergeNodes(rootNode, updatedNode *yaml.Node) {
	if rootNode == nil || updatedNode == nil {
		return
	}

	switch {
	case rootNode.Kind == yaml.MappingNode && updatedNode.Kind == yaml.MappingNode:
		updatedMap := make(map[string]*yaml.Node)
		for i := 0; i+1 < len(updatedNode.Content); i += 2 {
			updatedMap[updatedNode.Content[i].Value] = updatedNode.Content[i+1]
		}

		for i := 0; i+1 < len(rootNode.Content); i += 2 {
			keyNode := rootNode.Content[i]
			valueNode := rootNode.Content[i+1]

			updatedValue, exists := updatedMap[keyNode.Value]
			if !exists {
				continue
			}
			if valueNode.Kind == yaml.MappingNode && updatedValue.Kind == yaml.MappingNode {
				mergeNodes(valueNode, updatedValue)
			} else if valueNode.Kind == yaml.SequenceNode && updatedValue.Kind == yaml.SequenceNode {
				valueNode.Content = updatedValue.Content
			} else {
				valueNode.Value = updatedValue.Value
				valueNode.Tag = updatedValue.Tag
			}
			delete(updatedMap, keyNode.Value)
		}

		// Keys added since the file was written land at the end of the map.
		for key, value := range updatedMap {
			rootNode.Content = append(rootNode.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, value)
		}
	case rootNode.Kind == yaml.SequenceNode && updatedNode.Kind == yaml.SequenceNode:
		rootNode.Content = updatedNode.Content
	case rootNode.Kind == yaml.ScalarNode && updatedNode.Kind == yaml.ScalarNode:
		rootNode.Value = updatedNode.Value
		rootNode.Tag = updatedNode.Tag
	case rootNode.Kind == yaml.DocumentNode && updatedNode.Kind == yaml.DocumentNode:
		if len(rootNode.Content) > 0 && len(updatedNode.Content) > 0 {
			mergeNodes(rootNode.Content[0], updatedNode.Content[0])
		}
	}
}

// WriteConfigWithComments writes the configuration to disk while keeping
// comments from the original file. If no original file exists or merging
// fails it falls back to a plain marshal.
func WriteConfigWithComments(cfg *Configuration) error {
	if cfg.path == "" {
		return errors.New("cannot write configuration, no path defined in struct")
	}

	rawYAML, err := ReadRawConfig(cfg.path)
	if err != nil && !os.IsNotExist(err) {
		return WriteToDisk(cfg)
	}

	if err == nil {
		if merged, mergeErr := MergeConfigWithRaw(rawYAML, cfg); mergeErr == nil {
			return WriteRawConfig(cfg.path, merged)
		}
	}
	return WriteToDisk(cfg)
}
