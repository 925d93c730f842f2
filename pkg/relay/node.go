// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"strings"
)

// DuplexNode is one side of a point-to-point Link.
type DuplexNode interface {
	ID() string
	Send(ctx context.Context, msg Message) error
}

// NodeBase holds a validated, non-blank node id. Embed it in adapter types.
type NodeBase struct {
	id string
}

func NewNodeBase(id string) (NodeBase, error) {
	if strings.TrimSpace(id) == "" {
		return NodeBase{}, ErrBlankID
	}
	return NodeBase{id: id}, nil
}

func (n NodeBase) ID() string {
	return n.id
}

func (n NodeBase) String() string {
	return fmt.Sprintf("node[id=%s]", n.id)
}

// FuncNode adapts a plain function into a DuplexNode.
type FuncNode struct {
	NodeBase
	send SendFunc
}

var _ DuplexNode = (*FuncNode)(nil)

func NewFuncNode(id string, send SendFunc) (*FuncNode, error) {
	base, err := NewNodeBase(id)
	if err != nil {
		return nil, err
	}
	return &FuncNode{NodeBase: base, send: send}, nil
}

func (f *FuncNode) Send(ctx context.Context, msg Message) error {
	return f.send(ctx, msg)
}

// sameID is the single id comparison policy of the package: ids are
// compared case-insensitively everywhere.
func sameID(a, b string) bool {
	return strings.EqualFold(a, b)
}
