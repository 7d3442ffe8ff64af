// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import "testing"

func seq(roles ...string) []ChatMessage {
	out := make([]ChatMessage, len(roles))
	for i, r := range roles {
		out[i] = ChatMessage{Role: r, Content: r}
	}
	return out
}

func TestIsWellFormed(t *testing.T) {
	const (
		s = RoleSystem
		u = RoleUser
		a = RoleAssistant
	)

	tests := []struct {
		name string
		seq  []ChatMessage
		want bool
	}{
		{"empty", nil, true},
		{"system only", seq(s), true},
		{"one turn", seq(s, u), true},
		{"full exchange", seq(s, u, a), true},
		{"long alternation", seq(s, u, a, u, a, u), true},
		{"starts with user", seq(u, a), false},
		{"starts with assistant", seq(a), false},
		{"assistant after system", seq(s, a), false},
		{"two users", seq(s, u, u), false},
		{"two assistants", seq(s, u, a, a), false},
		{"system recurs", seq(s, u, s), false},
		{"two systems", seq(s, s), false},
		{"unknown role", seq(s, "tool"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsWellFormed(tt.seq); got != tt.want {
				t.Errorf("IsWellFormed(%v) = %v, want %v", tt.seq, got, tt.want)
			}
		})
	}
}

func TestIsWellFormedBreaksOnInsertion(t *testing.T) {
	base := seq(RoleSystem, RoleUser, RoleAssistant, RoleUser, RoleAssistant)
	if !IsWellFormed(base) {
		t.Fatal("base sequence should be well formed")
	}

	// Duplicating any non-system entry in place puts two equal roles side by side.
	for i := 1; i < len(base); i++ {
		broken := append(append(append([]ChatMessage{}, base[:i+1]...), base[i]), base[i+1:]...)
		if IsWellFormed(broken) {
			t.Errorf("duplicate at %d should be rejected: %v", i, broken)
		}
	}
}
