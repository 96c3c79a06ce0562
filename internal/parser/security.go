package parser

import "strings"

// PhraseWord is one element of a keyword phrase: a bare word, or an
// argument expression (literal or parenthesized).
type PhraseWord struct {
	Word string
	Arg  Expr
}

func (w PhraseWord) IsArg() bool { return w.Arg != nil }

// Phrase is one clause of a security sentence, e.g. `block ip "10.0.0.1"`.
type Phrase struct {
	Position
	Words []PhraseWord
}

// Head returns the bare words before the first argument. Handler lookup
// matches a prefix of these.
func (p *Phrase) Head() []string {
	var head []string
	for _, w := range p.Words {
		if w.IsArg() {
			break
		}
		head = append(head, w.Word)
	}
	return head
}

// Text is the phrase with arguments rendered as source.
func (p *Phrase) Text() string {
	parts := make([]string, len(p.Words))
	for i, w := range p.Words {
		if w.IsArg() {
			parts[i] = phraseArg(w.Arg)
		} else {
			parts[i] = w.Word
		}
	}
	return strings.Join(parts, " ")
}

// Chain is a clause sequence joined by and/or. Ops[i] joins Clauses[i] and
// Clauses[i+1].
type Chain struct {
	Clauses []*Phrase
	Ops     []string
}

// Groups splits the chain at "or". and binds tighter, so each group is an
// and-chain and the chain succeeds when any group does.
func (c *Chain) Groups() [][]*Phrase {
	groups := [][]*Phrase{{c.Clauses[0]}}
	for i, op := range c.Ops {
		if op == "or" {
			groups = append(groups, []*Phrase{c.Clauses[i+1]})
			continue
		}
		last := len(groups) - 1
		groups[last] = append(groups[last], c.Clauses[i+1])
	}
	return groups
}

// Guard is the if/unless condition of a sentence. It covers the whole chain.
type Guard struct {
	Position
	Cond   Expr
	Unless bool
}

// SecuritySentence is a guarded chain of keyword phrases.
//
//	monitor traffic and trace source and quarantine if malicious
//	firewall enable then { ... } else { ... }
//	if suspicious then scan host else alert "clean"
//
// Leading marks the third form. Else and ElseChain are mutually exclusive.
type SecuritySentence struct {
	Position
	Chain     *Chain
	Guard     *Guard
	Leading   bool
	Then      *Block
	Else      *Block
	ElseChain *Chain
}
