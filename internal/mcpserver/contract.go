package mcpserver

// NoteFormatContract describes the Markdown note format that LLM consumers
// should follow when creating or updating notes.
const NoteFormatContract = `# marknest Note Format

Notes are plain UTF-8 Markdown files stored in a per-user folder tree.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # OPTIONAL – shown in the tree and public feed
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. **File paths** are relative, use forward slashes and end with ` + "`" + `.md` + "`" + `.
   Leading ` + "`" + `/` + "`" + ` and ` + "`" + `..` + "`" + ` segments are rejected.
2. **File names** may contain letters, digits, ` + "`" + `_` + "`" + `, ` + "`" + `-` + "`" + ` and ` + "`" + `.` + "`" + `.
   Folder names follow the same rule without the dot.
3. **Title** resolution order: explicit title argument, then frontmatter ` + "`" + `title` + "`" + `,
   then the file name without extension in title case (` + "`" + `quick-sort.md` + "`" + ` → "Quick Sort").
4. **Preview**: the first 200 characters of the body, with newlines folded
   into spaces and nothing else removed, are shown in the public feed.
5. **Visibility**: new notes are private. Publishing is done through the web API.
6. **No HTML** unless absolutely necessary; prefer Markdown equivalents.

## Example

` + "```" + `markdown
---
title: Sorting algorithms
---

# Sorting algorithms

Quick sort picks a pivot and partitions the input.
` + "```" + `
`
