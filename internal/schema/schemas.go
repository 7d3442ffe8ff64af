// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package schema

// JSON Schema documents for the persisted records and the backup envelope.
// A chat's character may be unnamed; a roster character may not.
// Cross-field invariants that JSON Schema cannot express are checked in Go
// after the structural pass.

const definitionsJSON = `
"definitions": {
  "message": {
    "type": "object",
    "required": ["id", "content", "role"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "content": {"type": "string"},
      "role": {"enum": ["system", "user", "assistant"]},
      "timestamp": {"type": "string"},
      "isEditing": {"type": "boolean"},
      "isPending": {"type": "boolean"}
    }
  },
  "group": {
    "type": "object",
    "required": ["role", "variants", "currentIndex"],
    "properties": {
      "role": {"enum": ["system", "user", "assistant"]},
      "avatar": {"type": "string"},
      "variants": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/message"}},
      "currentIndex": {"type": "integer", "minimum": 0}
    }
  },
  "character": {
    "type": "object",
    "required": ["name"],
    "properties": {
      "name": {"type": "string", "minLength": 1},
      "avatar": {"type": "string"},
      "systemPrompt": {"type": "string"},
      "temperature": {"type": "number"},
      "topP": {"type": "number"},
      "model": {"type": "string"}
    }
  },
  "chatCharacter": {
    "type": "object",
    "required": ["name"],
    "properties": {
      "name": {"type": "string"},
      "avatar": {"type": "string"},
      "systemPrompt": {"type": "string"},
      "temperature": {"type": "number"},
      "topP": {"type": "number"},
      "model": {"type": "string"}
    }
  },
  "history": {
    "type": "object",
    "required": ["id", "characterConfig", "groups"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "characterConfig": {"$ref": "#/definitions/chatCharacter"},
      "groups": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/group"}}
    }
  },
  "chatListItem": {
    "type": "object",
    "required": ["id", "name"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "name": {"type": "string"},
      "avatar": {"type": "string"},
      "lastMessage": {"type": "string"},
      "pinned": {"type": "boolean"},
      "systemPrompt": {"type": "string"},
      "createdAt": {"type": "string"},
      "updatedAt": {"type": "string"}
    }
  }
}`

const chatStateJSON = `{
"$schema": "http://json-schema.org/draft-07/schema#",
"type": "object",
"required": ["chatList", "chatHistories"],
"properties": {
  "currentChatId": {"type": ["string", "null"]},
  "chatList": {"type": "array", "items": {"$ref": "#/definitions/chatListItem"}},
  "chatHistories": {"type": "object", "additionalProperties": {"$ref": "#/definitions/history"}}
},
` + definitionsJSON + `
}`

const characterStateJSON = `{
"$schema": "http://json-schema.org/draft-07/schema#",
"type": "object",
"required": ["characters"],
"properties": {
  "characters": {"type": "array", "items": {"$ref": "#/definitions/character"}},
  "currentCharacter": {"anyOf": [{"type": "null"}, {"$ref": "#/definitions/character"}]}
},
` + definitionsJSON + `
}`

// The halves are only type-checked here; each is validated on
// its own so one bad half does not hide the other.
const backupJSON = `{
"$schema": "http://json-schema.org/draft-07/schema#",
"type": "object",
"properties": {
  "chatState": {"type": ["object", "null"]},
  "characterState": {"type": ["object", "null"]},
  "version": {"type": "string"},
  "exportDate": {"type": "string", "format": "date-time"}
}
}`
