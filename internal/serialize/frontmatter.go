package serialize

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/gitddb/gitddb/internal/types"
	"gopkg.in/yaml.v3"
)

const (
	// FrontMatterExtMD is the Markdown front-matter extension.
	FrontMatterExtMD = ".md"
	// FrontMatterExtYML is the plain-YAML front-matter extension.
	FrontMatterExtYML = ".yml"

	fence = "---"
	// DefaultBodyField is the document property that becomes the
	// Markdown body when serializing to front-matter format.
	DefaultBodyField = "_body"
)

// MarshalFrontMatter renders doc as YAML front matter framed by "---"
// fences, with bodyField (default "_body") emitted as the Markdown
// body below the closing fence. "_id" is never duplicated into the
// front matter and the body both; it is dropped from the body output
// only (callers read it back via the path, per spec §4.1). The body is
// always followed by one newline, which UnmarshalFrontMatter removes.
func MarshalFrontMatter(doc types.JsonDoc, bodyField string) ([]byte, error) {
	if bodyField == "" {
		bodyField = DefaultBodyField
	}
	header := make(map[string]interface{}, len(doc))
	var body string
	for k, v := range doc {
		if k == bodyField {
			if s, ok := v.(string); ok {
				body = s
			}
			continue
		}
		header[k] = v
	}

	var buf bytes.Buffer
	buf.WriteString(fence)
	buf.WriteByte('\n')
	if len(header) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(sortedYAMLMap(header)); err != nil {
			return nil, fmt.Errorf("serialize: front matter yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("serialize: front matter yaml close: %w", err)
		}
	}
	buf.WriteString(fence)
	buf.WriteByte('\n')
	buf.WriteString(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// UnmarshalFrontMatter parses front-matter bytes into a JsonDoc, with
// the Markdown body stored under bodyField. Per spec §4.1, any "_id"
// present in the header is dropped — callers derive "_id" from the
// file path, not from file content.
func UnmarshalFrontMatter(b []byte, bodyField string) (types.JsonDoc, error) {
	if bodyField == "" {
		bodyField = DefaultBodyField
	}
	s := string(b)
	if !strings.HasPrefix(s, fence) {
		return nil, fmt.Errorf("serialize: front matter must start with %q fence", fence)
	}
	rest := s[len(fence):]
	rest = strings.TrimPrefix(rest, "\n")

	end := strings.Index(rest, "\n"+fence)
	if end < 0 {
		return nil, fmt.Errorf("serialize: front matter missing closing %q fence", fence)
	}
	header := rest[:end]
	body := rest[end+len("\n"+fence):]
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimSuffix(body, "\n")

	doc := types.JsonDoc{}
	if strings.TrimSpace(header) != "" {
		var m map[string]interface{}
		if err := yaml.Unmarshal([]byte(header), &m); err != nil {
			return nil, fmt.Errorf("serialize: parse front matter yaml: %w", err)
		}
		for k, v := range m {
			doc[k] = v
		}
	}
	delete(doc, "_id")
	doc[bodyField] = body
	return doc, nil
}

// sortedYAMLMap wraps m in a yaml.Node-free structure whose keys
// marshal in ASCII order, since yaml.v3's default map encoding does
// not guarantee key order.
func sortedYAMLMap(m map[string]interface{}) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
		valNode := &yaml.Node{}
		_ = valNode.Encode(m[k])
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node
}
