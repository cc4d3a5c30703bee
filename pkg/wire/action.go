package wire

// Action wire ids, in the order they appear in the data payload:
// entity_action_count:u8 followed by one byte of ActionType per
// action. Shared between the server's packet writer (pkg/entity) and
// the client's decoder (pkg/client) so both sides agree on the
// encoding without either importing the other.
type ActionType byte

// ManagerType is the one-byte section tag at the head of every Data
// payload: the receiving connection deframes the standard header and
// then routes the remainder to the manager the tag names. Commands
// only travel client to server; entity sections only server to
// client; messages travel both ways.
type ManagerType byte

const (
	ManagerEntity ManagerType = iota
	ManagerMessage
	ManagerCommand
)

func (m ManagerType) String() string {
	switch m {
	case ManagerEntity:
		return "Entity"
	case ManagerMessage:
		return "Message"
	case ManagerCommand:
		return "Command"
	default:
		return "Unknown"
	}
}

const (
	ActionSpawn ActionType = iota
	ActionDespawn
	ActionOwn
	ActionDisown
	ActionInsert
	ActionUpdate
	ActionRemove
)

func (a ActionType) String() string {
	switch a {
	case ActionSpawn:
		return "SpawnEntity"
	case ActionDespawn:
		return "DespawnEntity"
	case ActionOwn:
		return "OwnEntity"
	case ActionDisown:
		return "DisownEntity"
	case ActionInsert:
		return "InsertComponent"
	case ActionUpdate:
		return "UpdateComponent"
	case ActionRemove:
		return "RemoveComponent"
	default:
		return "Unknown"
	}
}
