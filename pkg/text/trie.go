package text

import "fmt"

// trie is a byte trie over a fixed vocabulary.
type trie struct {
	children map[byte]*trie
	end      bool
}

// newTrie creates a new trie holding every word of data.
func newTrie(data []string) *trie {
	t := &trie{
		children: map[byte]*trie{},
	}
	for _, word := range data {
		err := t.Insert([]byte(word))
		if err != nil {
			panic(err)
		}
	}
	return t
}

// Insert inserts a word into the trie.
func (t *trie) Insert(word []byte) error {
	cur := t
	if len(word) == 0 {
		return fmt.Errorf("zero length word not supported")
	}
	for _, b := range word {
		if cur.children[b] == nil {
			cur.children[b] = &trie{
				children: map[byte]*trie{},
			}
		}
		cur = cur.children[b]
	}
	cur.end = true
	return nil
}

// Contains reports whether word was inserted.
func (t *trie) Contains(word []byte) bool {
	cur := t
	for _, b := range word {
		cur = cur.children[b]
		if cur == nil {
			return false
		}
	}
	return cur.end
}
