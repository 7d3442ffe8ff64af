// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

// IsWellFormed reports whether seq is a system message followed by strictly
// alternating user and assistant messages, starting with user. The empty
// sequence is well formed.
func IsWellFormed(seq []ChatMessage) bool {
	for i, m := range seq {
		if i == 0 {
			if m.Role != RoleSystem {
				return false
			}
			continue
		}

		prev := seq[i-1].Role
		switch m.Role {
		case RoleUser:
			if prev != RoleSystem && prev != RoleAssistant {
				return false
			}
		case RoleAssistant:
			if prev != RoleUser {
				return false
			}
		default:
			// system may not recur; unknown roles never fit
			return false
		}
	}
	return true
}
