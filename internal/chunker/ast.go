package chunker

import (
	"sort"
	"sync"

	"github.com/codetriever/ingestcore/internal/model"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// semanticNodeTypes lists, per language, the grammar node types that
// are top-level declarative constructs worth their own span. These
// strings are defined by each Tree-sitter grammar, not by this
// package; they are stable within a grammar version but are not Go
// constants for that reason.
var semanticNodeTypes = map[string]map[string]string{
	"java": {
		"class_declaration":       "class",
		"interface_declaration":   "interface",
		"enum_declaration":        "enum",
		"method_declaration":      "method",
		"constructor_declaration": "constructor",
	},
	"javascript": {
		"function_declaration": "function",
		"class_declaration":    "class",
		"method_definition":    "method",
		"arrow_function":       "function",
		"function_expression":  "function",
	},
	"typescript": {
		"function_declaration":   "function",
		"class_declaration":      "class",
		"interface_declaration":  "interface",
		"type_alias_declaration": "type",
		"method_definition":      "method",
		"arrow_function":         "function",
	},
	"go": {
		"function_declaration": "function",
		"method_declaration":   "method",
		"type_declaration":     "type",
	},
	"python": {
		"function_definition": "function",
		"class_definition":    "class",
	},
}

var languageFactories = map[string]func() *sitter.Language{
	"java":       java.GetLanguage,
	"javascript": javascript.GetLanguage,
	"typescript": typescript.GetLanguage,
	"go":         golang.GetLanguage,
	"python":     python.GetLanguage,
}

// parserPool lazily builds and protects one *sitter.Parser per
// language. Tree-sitter parsers are not thread-safe, so every parser
// access (not the resulting tree) is serialized by a mutex.
type parserPool struct {
	mu      sync.Mutex
	parsers map[string]*sitter.Parser
}

var pool = &parserPool{parsers: make(map[string]*sitter.Parser)}

func (p *parserPool) parse(language string, content []byte) *sitter.Tree {
	factory, ok := languageFactories[language]
	if !ok {
		return nil
	}

	p.mu.Lock()
	parser, ok := p.parsers[language]
	if !ok {
		parser = sitter.NewParser()
		parser.SetLanguage(factory())
		p.parsers[language] = parser
	}
	tree := parser.Parse(nil, content)
	p.mu.Unlock()

	return tree
}

// HasGrammar reports whether a syntax grammar is registered for
// language.
func HasGrammar(language string) bool {
	_, ok := languageFactories[language]
	return ok
}

// ExtractSpans walks the syntax tree for language and emits a span
// per recognized declarative node, plus anonymous spans for gaps
// between them wider than one blank line. If parsing fails, it falls
// back to line-based spans so a malformed file never loses content.
func ExtractSpans(text, language string) []model.CodeSpan {
	content := []byte(text)
	tree := pool.parse(language, content)
	if tree == nil || tree.RootNode() == nil {
		return FallbackSpans(text, language)
	}

	nodeTypes := semanticNodeTypes[language]
	var raw []model.CodeSpan
	walk(tree.RootNode(), content, nodeTypes, language, &raw)

	if len(raw) == 0 {
		return FallbackSpans(text, language)
	}

	sort.Slice(raw, func(i, j int) bool { return raw[i].ByteStart < raw[j].ByteStart })
	return fillGaps(text, raw, language)
}

// walk visits the tree looking for top-level declarative constructs.
// A matched node stops the recursion there: its own children (e.g. a
// class's methods) are folded into its span rather than emitted as
// overlapping spans of their own, which keeps the emitted spans
// pairwise disjoint for grammars like Java and JavaScript/TypeScript
// where a class-level type and a nested method-level type both appear
// in nodeTypes.
func walk(node *sitter.Node, content []byte, nodeTypes map[string]string, language string, out *[]model.CodeSpan) {
	if node == nil {
		return
	}

	if kind, ok := nodeTypes[node.Type()]; ok {
		span := spanFromNode(node, content, kind, language)
		if span != nil {
			*out = append(*out, *span)
		}
		return
	}

	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		walk(node.Child(i), content, nodeTypes, language, out)
	}
}

func spanFromNode(node *sitter.Node, content []byte, kind, language string) *model.CodeSpan {
	start, end := int(node.StartByte()), int(node.EndByte())
	if start >= end || end > len(content) {
		return nil
	}

	return &model.CodeSpan{
		Content:   string(content[start:end]),
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		ByteStart: start,
		ByteEnd:   end,
		Kind:      kind,
		Name:      nodeName(node, content),
		Language:  language,
	}
}

// nodeName looks for a direct identifier-like child to use as the
// span's name; returns "" if none is found rather than guessing.
func nodeName(node *sitter.Node, content []byte) string {
	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "identifier", "name", "property_identifier", "type_identifier":
			return string(content[child.StartByte():child.EndByte()])
		}
	}
	return ""
}

// fillGaps inserts anonymous spans for the bytes between recognized
// nodes: attached to the preceding span when the gap is one blank
// line or less, otherwise emitted as their own span, per the gap
// policy.
func fillGaps(text string, spans []model.CodeSpan, language string) []model.CodeSpan {
	content := []byte(text)
	var out []model.CodeSpan
	cursor := 0

	for _, s := range spans {
		if s.ByteStart > cursor {
			gap := content[cursor:s.ByteStart]
			if isMoreThanOneBlankLine(gap) {
				out = append(out, gapSpan(text, cursor, s.ByteStart, language))
			} else if len(out) > 0 {
				out[len(out)-1] = extendSpan(out[len(out)-1], text, s.ByteStart)
			} else if len(gap) > 0 {
				out = append(out, gapSpan(text, cursor, s.ByteStart, language))
			}
		}
		out = append(out, s)
		cursor = s.ByteEnd
	}

	if cursor < len(content) {
		tail := content[cursor:]
		if isMoreThanOneBlankLine(tail) || len(out) == 0 {
			if len(tail) > 0 {
				out = append(out, gapSpan(text, cursor, len(content), language))
			}
		} else {
			out[len(out)-1] = extendSpan(out[len(out)-1], text, len(content))
		}
	}

	return out
}

func isMoreThanOneBlankLine(gap []byte) bool {
	blank := 0
	for _, line := range splitLinesKeepEmpty(string(gap)) {
		if trimmed := trimSpace(line); trimmed == "" {
			blank++
		} else {
			return false
		}
	}
	// Splitting on "\n" yields one piece for the rest of the preceding
	// line and one for the start of the next line; only the pieces in
	// between are blank lines.
	return blank-2 > 1
}

func gapSpan(text string, start, end int, language string) model.CodeSpan {
	startLine := lineAt(text, start)
	endLine := lineAt(text, end-1)
	if endLine < startLine {
		endLine = startLine
	}
	return model.CodeSpan{
		Content:   text[start:end],
		StartLine: startLine,
		EndLine:   endLine,
		ByteStart: start,
		ByteEnd:   end,
		Language:  language,
	}
}

func extendSpan(s model.CodeSpan, text string, newEnd int) model.CodeSpan {
	s.Content = text[s.ByteStart:newEnd]
	s.ByteEnd = newEnd
	s.EndLine = lineAt(text, newEnd-1)
	return s
}

func lineAt(text string, byteOffset int) int {
	if byteOffset < 0 {
		byteOffset = 0
	}
	if byteOffset > len(text) {
		byteOffset = len(text)
	}
	line := 1
	for i := 0; i < byteOffset; i++ {
		if text[i] == '\n' {
			line++
		}
	}
	return line
}
