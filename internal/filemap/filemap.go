// Package filemap renders collected files as an ASCII directory tree wrapped
// in a <file_map> block suitable for inclusion in a model prompt.
package filemap

import (
	"sort"
	"strings"

	"github.com/temirov/promptmap/internal/utils"
)

const (
	fileMapOpenTag     = "<file_map>"
	fileMapCloseTag    = "</file_map>"
	selectionLegend    = "(* denotes selected files)"
	branchConnector    = "├── "
	lastConnector      = "└── "
	continuationIndent = "│   "
	terminalIndent     = "    "
	selectionMarker    = " *"
)

// TreeNode is one entry in the rendered tree. Children keep insertion order;
// Render sorts a display copy instead of mutating the node.
type TreeNode struct {
	Name        string
	IsDirectory bool
	IsSelected  bool
	Children    []*TreeNode
}

func (node *TreeNode) childNamed(name string) *TreeNode {
	for _, child := range node.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// BuildTree folds root-relative file paths into a tree. A nil selected set
// marks every file selected; otherwise only listed paths carry the marker.
// Re-adding a path can turn selection on but never off.
func BuildTree(filePaths []string, rootPath string, selectedPaths map[string]bool) *TreeNode {
	rootNode := &TreeNode{Name: rootPath, IsDirectory: true}
	for _, filePath := range filePaths {
		relativePath := utils.RelativePathOrSelf(filePath, rootPath)
		if relativePath == "." {
			continue
		}
		// A path outside the root comes back absolute; placing it under the
		// root would fabricate nameless nodes, so it is skipped.
		if strings.HasPrefix(relativePath, "/") {
			continue
		}
		selected := selectedPaths == nil || selectedPaths[filePath]
		insertPath(rootNode, strings.Split(relativePath, "/"), selected)
	}
	return rootNode
}

func insertPath(parentNode *TreeNode, segments []string, selected bool) {
	segmentName := segments[0]
	isLeaf := len(segments) == 1

	childNode := parentNode.childNamed(segmentName)
	if childNode == nil {
		childNode = &TreeNode{Name: segmentName, IsDirectory: !isLeaf}
		parentNode.Children = append(parentNode.Children, childNode)
	}
	if isLeaf {
		if selected {
			childNode.IsSelected = true
		}
		return
	}
	childNode.IsDirectory = true
	insertPath(childNode, segments[1:], selected)
}

// Render produces the tree body beneath a node, without the node itself.
// Directories precede files; each group is sorted lexicographically.
func Render(node *TreeNode) string {
	var builder strings.Builder
	renderChildren(&builder, node, "")
	return builder.String()
}

func renderChildren(builder *strings.Builder, node *TreeNode, linePrefix string) {
	ordered := displayOrder(node.Children)
	for childIndex, childNode := range ordered {
		isLast := childIndex == len(ordered)-1

		connector := branchConnector
		childIndent := continuationIndent
		if isLast {
			connector = lastConnector
			childIndent = terminalIndent
		}

		builder.WriteString(linePrefix)
		builder.WriteString(connector)
		builder.WriteString(childNode.Name)
		if !childNode.IsDirectory && childNode.IsSelected {
			builder.WriteString(selectionMarker)
		}
		builder.WriteString("\n")

		if childNode.IsDirectory {
			renderChildren(builder, childNode, linePrefix+childIndent)
		}
	}
}

func displayOrder(children []*TreeNode) []*TreeNode {
	ordered := make([]*TreeNode, len(children))
	copy(ordered, children)
	sort.SliceStable(ordered, func(leftIndex, rightIndex int) bool {
		left, right := ordered[leftIndex], ordered[rightIndex]
		if left.IsDirectory != right.IsDirectory {
			return left.IsDirectory
		}
		return left.Name < right.Name
	})
	return ordered
}

// RenderSingleRoot wraps one root's tree in <file_map> markup with the
// selection legend. A root holding no files renders as an empty string with
// no markup.
func RenderSingleRoot(rootNode *TreeNode) string {
	if len(rootNode.Children) == 0 {
		return ""
	}
	var builder strings.Builder
	builder.WriteString(fileMapOpenTag)
	builder.WriteString("\n")
	builder.WriteString(rootNode.Name)
	builder.WriteString("\n")
	builder.WriteString(Render(rootNode))
	builder.WriteString("\n")
	builder.WriteString(selectionLegend)
	builder.WriteString("\n")
	builder.WriteString(fileMapCloseTag)
	return builder.String()
}

// RenderMultiRoot wraps several roots in one <file_map> block, separated by
// blank lines. The legend is only emitted for single-root maps. When no root
// holds any file the result is an empty string with no markup.
func RenderMultiRoot(rootNodes []*TreeNode) string {
	if len(rootNodes) == 0 {
		return ""
	}
	if len(rootNodes) == 1 {
		return RenderSingleRoot(rootNodes[0])
	}
	anyFiles := false
	for _, rootNode := range rootNodes {
		if len(rootNode.Children) > 0 {
			anyFiles = true
			break
		}
	}
	if !anyFiles {
		return ""
	}

	var builder strings.Builder
	builder.WriteString(fileMapOpenTag)
	builder.WriteString("\n")
	for rootIndex, rootNode := range rootNodes {
		if rootIndex > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(rootNode.Name)
		builder.WriteString("\n")
		builder.WriteString(Render(rootNode))
	}
	builder.WriteString(fileMapCloseTag)
	return builder.String()
}
