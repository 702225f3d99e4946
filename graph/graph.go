package graph

import (
	"fmt"
	"strings"

	"github.com/awalterschulze/gographviz"
	"github.com/pkg/errors"
)

type Field struct {
	Name, Value string
}

type Child struct {
	Name string
	Node *Node
}

// Node is one stage of a dataflow, rendered as a graphviz record.
type Node struct {
	Name     string
	Fields   []Field
	Children []Child
}

func NewNode(name string) *Node {
	return &Node{
		Name: name,
	}
}

func (n *Node) AddField(name, value string) {
	n.Fields = append(n.Fields, Field{
		Name:  name,
		Value: value,
	})
}

func (n *Node) AddChild(name string, node *Node) {
	n.Children = append(n.Children, Child{
		Name: name,
		Node: node,
	})
}

type Visualizer interface {
	Visualize() *Node
}

// Show renders the tree rooted at node, with edges from parents to the ports naming their children.
func Show(node *Node) (*gographviz.Graph, error) {
	graph := gographviz.NewGraph()
	graph.Directed = true
	if err := graph.SetName("dataflow"); err != nil {
		return nil, errors.Wrap(err, "couldn't name graph")
	}
	if err := graph.AddAttr("dataflow", "rankdir", "LR"); err != nil {
		return nil, errors.Wrap(err, "couldn't set graph direction")
	}
	builder := &graphBuilder{
		graph:        graph,
		nameCounters: make(map[string]int),
	}

	if _, err := builder.addNode(node); err != nil {
		return nil, err
	}
	return graph, nil
}

type graphBuilder struct {
	graph        *gographviz.Graph
	nameCounters map[string]int
}

func (gb *graphBuilder) getID(name string) string {
	count := gb.nameCounters[name]
	gb.nameCounters[name]++
	return fmt.Sprintf("%s_%d", strings.NewReplacer(" ", "_", "-", "_").Replace(name), count)
}

func (gb *graphBuilder) addNode(node *Node) (string, error) {
	fields := make([]string, len(node.Fields))
	for i, field := range node.Fields {
		fields[i] = fmt.Sprintf("<%s> %s: %s", field.Name, field.Name, escapeLabel(field.Value))
	}
	childPorts := make([]string, len(node.Children))
	for i, child := range node.Children {
		childPorts[i] = fmt.Sprintf("<%s> %s", child.Name, child.Name)
	}

	labelParts := []string{fmt.Sprintf("<f0> %s", node.Name)}
	if len(fields) > 0 {
		labelParts = append(labelParts, strings.Join(fields, "|"))
	}
	if len(childPorts) > 0 {
		labelParts = append(labelParts, strings.Join(childPorts, "|"))
	}

	id := gb.getID(node.Name)
	if err := gb.graph.AddNode("dataflow", id, map[string]string{
		"shape": "record",
		"label": fmt.Sprintf("\"{{%s}}\"", strings.Join(labelParts, "}|{")),
	}); err != nil {
		return "", errors.Wrapf(err, "couldn't add node %s", id)
	}

	for _, child := range node.Children {
		childID, err := gb.addNode(child.Node)
		if err != nil {
			return "", err
		}
		if err := gb.graph.AddPortEdge(id, child.Name, childID, "", true, nil); err != nil {
			return "", errors.Wrapf(err, "couldn't add edge from %s to %s", id, childID)
		}
	}
	return id, nil
}

// escapeLabel escapes characters with a meaning in record labels.
func escapeLabel(text string) string {
	return strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"{", `\{`,
		"}", `\}`,
		"|", `\|`,
		"<", `\<`,
		">", `\>`,
	).Replace(text)
}
