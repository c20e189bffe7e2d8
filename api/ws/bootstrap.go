package ws

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kasuganosora/gamecaps/game"
	"github.com/kasuganosora/gamecaps/game/types"
	"github.com/kasuganosora/gamecaps/rpc"
)

// Bootstrap schemas accepted by NewBootstrap.
const (
	SchemaGameWorld   = "game_world"
	SchemaChat        = "chat"
	SchemaInventory   = "inventory"
	SchemaMatchmaking = "matchmaking"
)

// ErrUnknownSchema is returned for a schema name NewBootstrap does not know.
var ErrUnknownSchema = errors.New("unknown schema")

// NewBootstrap returns the root capability served to every connection for
// schema. "gameworld" is accepted as an alias of game_world.
func NewBootstrap(schema string, svcs *game.Services) (rpc.Server, error) {
	switch strings.ToLower(schema) {
	case SchemaGameWorld, "gameworld":
		return newGameWorld(svcs.World), nil
	case SchemaChat:
		return newChatService(svcs.Chat), nil
	case SchemaInventory:
		return newInventoryService(svcs.Inventory), nil
	case SchemaMatchmaking:
		return newMatchmakingService(svcs.Matchmaking), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, schema)
	}
}

// reply is embedded in every method result.
type reply struct {
	Status types.Status `json:"status"`
}

func (r reply) RPCStatus() string { return r.Status.String() }

func replyOf(err error) reply { return reply{Status: types.StatusOf(err)} }

var okReply = reply{Status: types.StatusOK}
