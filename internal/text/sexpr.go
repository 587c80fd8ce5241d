package text

import "github.com/jblebrun/wazir/internal/werr"

// Node is one parenthesized form: a list of Items, each either a nested Node or an atom
// Token (keyword, id, string, or number).
type Node struct {
	Items []Item
	Pos   int
}

type Item struct {
	List *Node
	Atom Token
}

func (it Item) IsList() bool { return it.List != nil }

const KindUnexpectedToken Kind = "unexpected token"
const KindUnclosedList Kind = "unexpected end"

// parseAll reads every top-level form in src (normally exactly one: the module).
func parseAll(src []byte) ([]*Node, *werr.Error) {
	l := NewLexer(src)
	var nodes []*Node
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if tok.Kind == TokEOF {
			return nodes, nil
		}
		if tok.Kind != TokLParen {
			return nil, newErr(KindUnexpectedToken, "expected '(' at top level")
		}
		n, err := parseList(l)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
}

// parseList parses the body of a list whose opening '(' was already consumed.
func parseList(l *Lexer) (*Node, *werr.Error) {
	n := &Node{}
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		switch tok.Kind {
		case TokRParen:
			return n, nil
		case TokEOF:
			return nil, newErr(KindUnclosedList, "unexpected end of input, expected ')'")
		case TokLParen:
			sub, err := parseList(l)
			if err != nil {
				return nil, err
			}
			n.Items = append(n.Items, Item{List: sub})
		default:
			n.Items = append(n.Items, Item{Atom: tok})
		}
	}
}

// head returns the leading keyword of n, or "" if n is empty or doesn't start with one.
func (n *Node) head() string {
	if len(n.Items) == 0 || n.Items[0].IsList() || n.Items[0].Atom.Kind != TokKeyword {
		return ""
	}
	return n.Items[0].Atom.Text
}
