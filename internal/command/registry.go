package command

import "sort"

var tree = NewTree()

// RegisterCommand adds a command to the global tree
func RegisterCommand(cmd Command) {
	tree.Register(cmd)
}

// ResolveCommand finds a command from args
func ResolveCommand(args []string) (*Node, []string, error) {
	return tree.Resolve(args)
}

// GetCommand returns a command by name
func GetCommand(name string) (Command, bool) {
	return tree.Get(name)
}

// AllCommands returns all commands registered in the global tree, sorted
// by name.
func AllCommands() []Command {
	cmds := make([]Command, 0)
	seen := make(map[*Node]struct{})

	var walk func(node *Node)
	walk = func(node *Node) {
		if _, ok := seen[node]; ok {
			return
		}
		seen[node] = struct{}{}
		if node.Cmd != nil {
			cmds = append(cmds, node.Cmd)
		}
		for _, sub := range node.Subcommands {
			walk(sub)
		}
	}

	walk(tree.root)
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name() < cmds[j].Name() })
	return cmds
}
