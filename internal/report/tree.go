package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sitecrawl/orchestrator/internal/atomicfile"
	"github.com/sitecrawl/orchestrator/internal/crawlweb"
)

type treeNode struct {
	children map[string]*treeNode
	samples  []string
}

func newTreeNode() *treeNode { return &treeNode{children: make(map[string]*treeNode)} }

// Tree renders an ASCII hierarchical tree of URL path segments, plus a
// sample-URL-examples document per branch, per spec.md Section 4.9.
func (w *Writer) Tree(urls []string) error {
	root := newTreeNode()
	for _, u := range urls {
		insertPath(root, pathSegments(u), u)
	}

	var ascii strings.Builder
	renderTree(&ascii, root, "", 0)
	if err := atomicfile.WriteFileAtomic(w.path("tree.txt"), []byte(ascii.String()), 0o644); err != nil {
		return err
	}

	var examples strings.Builder
	examples.WriteString("# Path tree examples\n\n")
	renderExamples(&examples, root, "")
	return atomicfile.WriteFileAtomic(w.path("tree-examples.md"), []byte(examples.String()), 0o644)
}

func pathSegments(rawURL string) []string {
	idx := strings.Index(rawURL, "://")
	path := rawURL
	if idx >= 0 {
		rest := rawURL[idx+3:]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			path = rest[slash:]
		} else {
			path = "/"
		}
	}
	var out []string
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func insertPath(root *treeNode, segments []string, fullURL string) {
	node := root
	for _, seg := range segments {
		child, ok := node.children[seg]
		if !ok {
			child = newTreeNode()
			node.children[seg] = child
		}
		if len(child.samples) < 3 {
			child.samples = append(child.samples, fullURL)
		}
		node = child
	}
}

func sortedKeys(m map[string]*treeNode) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func renderTree(buf *strings.Builder, node *treeNode, prefix string, depth int) {
	keys := sortedKeys(node.children)
	for i, k := range keys {
		last := i == len(keys)-1
		connector := "├── "
		nextPrefix := prefix + "│   "
		if last {
			connector = "└── "
			nextPrefix = prefix + "    "
		}
		fmt.Fprintf(buf, "%s%s%s\n", prefix, connector, k)
		renderTree(buf, node.children[k], nextPrefix, depth+1)
	}
}

func renderExamples(buf *strings.Builder, node *treeNode, path string) {
	for _, k := range sortedKeys(node.children) {
		child := node.children[k]
		full := path + "/" + k
		fmt.Fprintf(buf, "## %s\n", full)
		for _, s := range child.samples {
			fmt.Fprintf(buf, "- %s\n", s)
		}
		buf.WriteString("\n")
		renderExamples(buf, child, full)
	}
}

// PathSegmentsOfEdges collects distinct link URLs from edges for tree
// rendering when the page-record final URLs alone aren't enough.
func PathSegmentsOfEdges(edges []crawlweb.Edge) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range edges {
		if _, ok := seen[e.LinkURL]; ok {
			continue
		}
		seen[e.LinkURL] = struct{}{}
		out = append(out, e.LinkURL)
	}
	return out
}
