package tree

import "github.com/disiqueira/gotree/v3"

// Render draws nodes as an indented text tree under label.
func Render(label string, nodes []Node) string {
	root := gotree.New(label)
	addNodes(root, nodes)
	return root.Print()
}

func addNodes(parent gotree.Tree, nodes []Node) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *FolderNode:
			addNodes(parent.Add(n.Name+"/"), n.Children)
		case *FileNode:
			label := n.Name
			if n.Meta != nil && n.Meta.IsPublic {
				label += " [public]"
			}
			parent.Add(label)
		}
	}
}
