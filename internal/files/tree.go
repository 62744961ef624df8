package files

import (
	"sort"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
	"github.com/ItachiCrypto/appforge-sub001/internal/paths"
)

// Node is a folder or file of a project tree.
type Node struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Type     string  `json:"type"` // "folder" or "file"
	Size     int64   `json:"size,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// BuildTree nests flat file metadata into folders. Folders sort before files,
// then by name. A path that is both a file and a folder prefix yields both nodes.
func BuildTree(infos []models.FileInfo) []*Node {
	root := &Node{Path: "/", Type: "folder"}
	folders := map[string]*Node{"/": root}

	var folder func(p string) *Node
	folder = func(p string) *Node {
		if n, ok := folders[p]; ok {
			return n
		}
		parent := folder(paths.Dir(p))
		n := &Node{Name: paths.Base(p), Path: p, Type: "folder"}
		parent.Children = append(parent.Children, n)
		folders[p] = n
		return n
	}

	for _, fi := range infos {
		parent := folder(paths.Dir(fi.Path))
		parent.Children = append(parent.Children, &Node{
			Name: paths.Base(fi.Path),
			Path: fi.Path,
			Type: "file",
			Size: fi.Size,
		})
	}
	sortTree(root)
	if root.Children == nil {
		return []*Node{}
	}
	return root.Children
}

func sortTree(n *Node) {
	sort.Slice(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.Type != b.Type {
			return a.Type == "folder"
		}
		return a.Name < b.Name
	})
	for _, c := range n.Children {
		if c.Type == "folder" {
			sortTree(c)
		}
	}
}
