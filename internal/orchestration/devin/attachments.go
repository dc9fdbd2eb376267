package devin

import (
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"github.com/zjrosen/agentbridge/internal/orchestration/client"
)

// extensionMimeTypes covers common source and document files that content
// sniffing does not recognize.
var extensionMimeTypes = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".mjs":  "application/javascript",
	".ts":   "application/typescript",
	".tsx":  "application/typescript",
	".jsx":  "application/javascript",
	".json": "application/json",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".xml":  "application/xml",
	".toml": "application/toml",
	".go":   "text/x-go",
	".py":   "text/x-python",
	".rs":   "text/x-rust",
	".java": "text/x-java",
	".c":    "text/x-c",
	".h":    "text/x-c",
	".cpp":  "text/x-c++",
	".sh":   "application/x-sh",
	".sql":  "application/sql",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".zip":  "application/zip",
}

// DetectMIMEType guesses the MIME type of a file: sniffed from content,
// then looked up by extension, then DefaultMimeType.
func DetectMIMEType(name string, data []byte) string {
	if len(data) > 0 {
		if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
			return kind.MIME.Value
		}
	}
	if mt, ok := extensionMimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return mt
	}
	return DefaultMimeType
}

// ExtractAttachments collects the URLs of inline image and file parts in
// encounter order. Duplicates are kept.
func ExtractAttachments(input []client.InputItem) []string {
	var urls []string
	for _, item := range input {
		for _, part := range item.Content {
			switch part.Type {
			case client.PartInputImage, client.PartInputFile, client.PartFile:
				if part.URL != "" {
					urls = append(urls, part.URL)
				}
			}
		}
	}
	return urls
}

// PromptFromInput joins the text of user-authored input with newlines.
// Non-text parts and non-user items are ignored.
func PromptFromInput(input []client.InputItem) string {
	var texts []string
	for _, item := range input {
		if item.Role != "" && item.Role != client.RoleUser {
			continue
		}
		for _, part := range item.Content {
			if part.Type == client.PartInputText && part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
	}
	return strings.Join(texts, "\n")
}
