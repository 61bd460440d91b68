package serialize

import "github.com/gitddb/gitddb/internal/types"

// Format is a pluggable serialization format: a deterministic,
// round-tripping mapping between a JsonDoc and bytes for a given file
// extension (spec §4.1).
type Format interface {
	// Ext is the file extension this format owns, including the dot.
	Ext() string
	// Marshal renders doc to its canonical byte form.
	Marshal(doc types.JsonDoc) ([]byte, error)
	// Unmarshal parses bytes back into a JsonDoc. Any "_id" present in
	// the bytes is dropped; callers derive "_id" from the file path.
	Unmarshal(b []byte) (types.JsonDoc, error)
}

type jsonFormat struct{}

func (jsonFormat) Ext() string { return JSONExt }
func (jsonFormat) Marshal(doc types.JsonDoc) ([]byte, error) {
	clean := doc.Clone()
	delete(clean, "_id")
	return MarshalCanonicalJSON(clean)
}
func (jsonFormat) Unmarshal(b []byte) (types.JsonDoc, error) {
	doc, err := UnmarshalCanonicalJSON(b)
	if err != nil {
		return nil, err
	}
	delete(doc, "_id")
	return doc, nil
}

// JSON is the built-in canonical-JSON format.
var JSON Format = jsonFormat{}

type frontMatterFormat struct {
	ext       string
	bodyField string
}

func (f frontMatterFormat) Ext() string { return f.ext }
func (f frontMatterFormat) Marshal(doc types.JsonDoc) ([]byte, error) {
	return MarshalFrontMatter(doc, f.bodyField)
}
func (f frontMatterFormat) Unmarshal(b []byte) (types.JsonDoc, error) {
	return UnmarshalFrontMatter(b, f.bodyField)
}

// NewFrontMatter returns a front-matter Format for the given extension
// (".md" or ".yml") with the given body field (default "_body" if
// empty).
func NewFrontMatter(ext, bodyField string) Format {
	return frontMatterFormat{ext: ext, bodyField: bodyField}
}

// FrontMatterMD is the built-in Markdown-with-front-matter format.
var FrontMatterMD Format = NewFrontMatter(FrontMatterExtMD, DefaultBodyField)

// Registry resolves a Format by extension.
type Registry struct {
	byExt map[string]Format
}

// NewRegistry returns a Registry pre-populated with JSON and
// front-matter Markdown.
func NewRegistry() *Registry {
	r := &Registry{byExt: map[string]Format{}}
	r.Register(JSON)
	r.Register(FrontMatterMD)
	return r
}

// Register adds or replaces the format handling f.Ext().
func (r *Registry) Register(f Format) { r.byExt[f.Ext()] = f }

// Lookup returns the format registered for ext, or (nil, false).
func (r *Registry) Lookup(ext string) (Format, bool) {
	f, ok := r.byExt[ext]
	return f, ok
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	return exts
}
