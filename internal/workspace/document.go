// Package workspace holds the editable state of a fiesta project: the ordered
// document collection, declared module dependencies and the refresh token
// that tells the isolation host when a rebuild is due.
package workspace

import (
	"errors"
	"path"
	"strings"
)

// Conventional document names. The composer reads the three root documents;
// the router maps fence labels onto them.
const (
	RootMarkup = "index.html"
	RootStyle  = "style.css"
	RootScript = "script.js"
	PythonMain = "main.py"
	GoMain     = "main.go"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrExists    = errors.New("document already exists")
	ErrProtected = errors.New("document is protected")
	ErrEmptyName = errors.New("document name is empty")
)

// Language tags a document for syntax and for run behaviour.
type Language string

const (
	LangHTML       Language = "html"
	LangCSS        Language = "css"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangJSON       Language = "json"
	LangMarkdown   Language = "markdown"
	LangPython     Language = "python"
	LangJava       Language = "java"
	LangGo         Language = "go"
)

// Simulated reports whether running this language is delegated to the AI
// collaborator instead of an isolated context.
func (l Language) Simulated() bool {
	return l == LangPython || l == LangJava
}

// LanguageForName infers a language from the file extension.
// Unknown extensions fall back to markdown.
func LanguageForName(name string) Language {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(name), ".")) {
	case "js", "mjs":
		return LangJavaScript
	case "ts":
		return LangTypeScript
	case "html", "htm":
		return LangHTML
	case "css":
		return LangCSS
	case "json":
		return LangJSON
	case "py":
		return LangPython
	case "java":
		return LangJava
	case "go":
		return LangGo
	default:
		return LangMarkdown
	}
}

// Document is one named source file.
type Document struct {
	Name     string   `json:"name"`
	Language Language `json:"language"`
	Content  string   `json:"content"`
}

// NewDocument builds a document with its language inferred from the name.
func NewDocument(name, content string) Document {
	return Document{Name: name, Language: LanguageForName(name), Content: content}
}
