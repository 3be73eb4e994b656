/*
File: trie.go
Version: 2.0.0
Description: Generic reversed-label domain trie.
             A node can match its own name exactly and/or every name below it.
*/

package main

import (
	"strings"
)

type trieNode[T any] struct {
	children map[string]*trieNode[T]
	value    T
	exact    bool // matches this name
	subtree  bool // matches any name below this one
}

// DomainTrie maps domains to values, walking labels right to left (com -> example -> www).
type DomainTrie[T any] struct {
	root *trieNode[T]
	size int
}

func NewDomainTrie[T any]() *DomainTrie[T] {
	return &DomainTrie[T]{root: &trieNode[T]{}}
}

// Insert adds domain. With subdomains set, any name ending in "."+domain matches too.
// A leading "*." inserts the subtree only.
func (t *DomainTrie[T]) Insert(domain string, value T, subdomains bool) {
	domain = strings.ToLower(strings.Trim(strings.TrimSpace(domain), "."))
	exact := true
	if strings.HasPrefix(domain, "*.") {
		domain = domain[2:]
		exact = false
		subdomains = true
	}
	if domain == "" {
		return
	}

	node := t.root
	end := len(domain)
	for end > 0 {
		start := strings.LastIndexByte(domain[:end], '.')
		part := domain[start+1 : end]
		if part != "" {
			if node.children == nil {
				node.children = make(map[string]*trieNode[T])
			}
			child, ok := node.children[part]
			if !ok {
				child = &trieNode[T]{}
				node.children[part] = child
			}
			node = child
		}
		if start < 0 {
			break
		}
		end = start
	}

	if !node.exact && !node.subtree {
		t.size++
	}
	node.value = value
	if exact {
		node.exact = true
	}
	if subdomains {
		node.subtree = true
	}
}

// Lookup returns the value for name. An exact entry wins over the deepest subtree ancestor.
func (t *DomainTrie[T]) Lookup(name string) (T, bool) {
	var zero T
	if name == "" {
		return zero, false
	}

	node := t.root
	var best *trieNode[T]
	end := len(name)
	for end > 0 {
		start := strings.LastIndexByte(name[:end], '.')
		part := name[start+1 : end]

		next, ok := node.children[part]
		if !ok {
			break
		}
		node = next

		if start < 0 {
			if node.exact {
				return node.value, true
			}
			break
		}
		// More labels remain, so only a subtree entry can match here.
		if node.subtree {
			best = node
		}
		end = start
	}

	if best != nil {
		return best.value, true
	}
	return zero, false
}

func (t *DomainTrie[T]) Contains(name string) bool {
	_, ok := t.Lookup(name)
	return ok
}

func (t *DomainTrie[T]) Len() int {
	return t.size
}
