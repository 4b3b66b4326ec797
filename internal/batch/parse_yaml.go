package batch

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/aiwhisperer/internal/errs"
)

const (
	yamlParseTimeout = 5 * time.Second
	maxYAMLAnchors   = 100
)

// allowedYAMLTags are the plain scalar/collection tags yaml.v3 assigns
// when decoding ordinary data; anything else (!!binary, !!python/object,
// custom application tags) is rejected outright.
var allowedYAMLTags = map[string]bool{
	"!!map": true, "!!seq": true, "!!str": true, "!!int": true,
	"!!float": true, "!!bool": true, "!!null": true, "!!timestamp": true,
}

func parseYAML(data []byte) (*Script, error) {
	type outcome struct {
		script *Script
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		script, err := parseYAMLSync(data)
		done <- outcome{script, err}
	}()

	select {
	case out := <-done:
		return out.script, out.err
	case <-time.After(yamlParseTimeout):
		return nil, errs.New(errs.KindProcessingTimeout, "yaml parse exceeded 5s timeout").WithStage("batch_parse")
	}
}

func parseYAMLSync(data []byte) (*Script, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errs.Wrap(errs.KindSyntaxError, err, "invalid yaml").WithStage("batch_parse")
	}
	if len(root.Content) == 0 {
		return nil, errs.New(errs.KindSyntaxError, "empty yaml document").WithStage("batch_parse")
	}

	anchors := 0
	if err := walkYAMLNode(root.Content[0], &anchors); err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := root.Content[0].Decode(&raw); err != nil {
		return nil, errs.Wrap(errs.KindSyntaxError, err, "invalid yaml").WithStage("batch_parse")
	}

	return scriptFromRaw(raw, FormatYAML)
}

func walkYAMLNode(node *yaml.Node, anchors *int) error {
	if node == nil {
		return nil
	}
	if node.Anchor != "" {
		*anchors++
	}
	if node.Kind == yaml.AliasNode {
		*anchors++
	}
	if *anchors > maxYAMLAnchors {
		return errs.New(errs.KindMemoryExhaustion, "yaml document exceeds anchor/alias limit of 100").WithStage("batch_parse")
	}
	if node.Tag != "" && !allowedYAMLTags[node.Tag] && node.Kind != yaml.AliasNode {
		return errs.New(errs.KindSyntaxError, "yaml document uses a disallowed tag: "+node.Tag).WithStage("batch_parse")
	}
	for _, child := range node.Content {
		if err := walkYAMLNode(child, anchors); err != nil {
			return err
		}
	}
	return nil
}
