package notion

// RichText builds a single plain text rich_text array.
func RichText(content string) []map[string]any {
	return []map[string]any{{
		"type": "text",
		"text": map[string]any{"content": content},
	}}
}

func Paragraph(content string) Block {
	return Block{
		"object":    "block",
		"type":      "paragraph",
		"paragraph": map[string]any{"rich_text": RichText(content)},
	}
}

func ToDo(content string, checked bool) Block {
	return Block{
		"object": "block",
		"type":   "to_do",
		"to_do": map[string]any{
			"rich_text": RichText(content),
			"checked":   checked,
		},
	}
}

// TitleProperty is the value of a title property holding content.
func TitleProperty(content string) map[string]any {
	return map[string]any{"title": RichText(content)}
}

// DateProperty is the value of a date property starting at start
// (YYYY-MM-DD).
func DateProperty(start string) map[string]any {
	return map[string]any{"date": map[string]any{"start": start}}
}
