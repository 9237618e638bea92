// Package tree enumerates a user's note directory into an ordered
// folder/file hierarchy.
package tree

import "encoding/json"

// Kind distinguishes files from folders in serialized output.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Node is either a *FileNode or a *FolderNode.
type Node interface {
	NodeName() string
	NodePath() string
	Kind() Kind
}

// Annotation carries metadata decorations for a file node.
type Annotation struct {
	ID       string
	Title    string
	IsPublic bool
}

// FileNode is a leaf entry.
type FileNode struct {
	Name string
	Path string
	Meta *Annotation
}

// FolderNode is a directory with ordered children.
type FolderNode struct {
	Name     string
	Path     string
	Children []Node
}

func (n *FileNode) NodeName() string { return n.Name }
func (n *FileNode) NodePath() string { return n.Path }
func (n *FileNode) Kind() Kind       { return KindFile }

func (n *FolderNode) NodeName() string { return n.Name }
func (n *FolderNode) NodePath() string { return n.Path }
func (n *FolderNode) Kind() Kind       { return KindFolder }

// MarshalJSON emits {name, path, type} plus metadata fields when annotated.
func (n *FileNode) MarshalJSON() ([]byte, error) {
	out := struct {
		Name     string `json:"name"`
		Path     string `json:"path"`
		Type     Kind   `json:"type"`
		ID       string `json:"id,omitempty"`
		Title    string `json:"title,omitempty"`
		IsPublic *bool  `json:"is_public,omitempty"`
	}{Name: n.Name, Path: n.Path, Type: KindFile}
	if n.Meta != nil {
		out.ID = n.Meta.ID
		out.Title = n.Meta.Title
		out.IsPublic = &n.Meta.IsPublic
	}
	return json.Marshal(out)
}

// MarshalJSON emits {name, path, type, children}; children is never null.
func (n *FolderNode) MarshalJSON() ([]byte, error) {
	children := n.Children
	if children == nil {
		children = []Node{}
	}
	return json.Marshal(struct {
		Name     string `json:"name"`
		Path     string `json:"path"`
		Type     Kind   `json:"type"`
		Children []Node `json:"children"`
	}{Name: n.Name, Path: n.Path, Type: KindFolder, Children: children})
}

// Annotate attaches metadata to every file node for which lookup reports a match.
func Annotate(nodes []Node, lookup func(path string) (Annotation, bool)) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *FileNode:
			if a, ok := lookup(n.Path); ok {
				n.Meta = &a
			}
		case *FolderNode:
			Annotate(n.Children, lookup)
		}
	}
}

// Find returns the node at the given logical path, or nil.
func Find(nodes []Node, path string) Node {
	for _, n := range nodes {
		if n.NodePath() == path {
			return n
		}
		if f, ok := n.(*FolderNode); ok {
			if found := Find(f.Children, path); found != nil {
				return found
			}
		}
	}
	return nil
}
