package decoder

import "github.com/mirahq/mira/internal/protocol"

// RegisterProtocol installs the built-in message set. Tags the relay never
// needs to understand stay unregistered and pass through as opaque payloads.
func RegisterProtocol(d *Decoder) {
	c2s := protocol.DirectionClientToServer
	s2c := protocol.DirectionServerToClient

	d.Register(protocol.ContainerRoot, uint8(protocol.RootTagHostGame), c2s,
		func() protocol.Message { return &protocol.HostGame{} })
	d.Register(protocol.ContainerRoot, uint8(protocol.RootTagHostGame), s2c,
		func() protocol.Message { return &protocol.HostGameResponse{} })
	d.Register(protocol.ContainerRoot, uint8(protocol.RootTagJoinGame), c2s,
		func() protocol.Message { return &protocol.JoinGame{} })
	d.Register(protocol.ContainerRoot, uint8(protocol.RootTagJoinGame), s2c,
		func() protocol.Message { return &protocol.JoinGameUpdate{} })
	d.Register(protocol.ContainerRoot, uint8(protocol.RootTagJoinedGame), s2c,
		func() protocol.Message { return &protocol.JoinedGame{} })
	d.RegisterBoth(protocol.ContainerRoot, uint8(protocol.RootTagStartGame),
		func() protocol.Message { return &protocol.StartGame{} })
	d.RegisterBoth(protocol.ContainerRoot, uint8(protocol.RootTagEndGame),
		func() protocol.Message { return &protocol.EndGame{} })
	d.RegisterBoth(protocol.ContainerRoot, uint8(protocol.RootTagRemoveGame),
		func() protocol.Message { return &protocol.RemoveGame{} })
	d.Register(protocol.ContainerRoot, uint8(protocol.RootTagRemovePlayer), s2c,
		func() protocol.Message { return &protocol.RemovePlayer{} })
	d.RegisterBoth(protocol.ContainerRoot, uint8(protocol.RootTagKickPlayer),
		func() protocol.Message { return &protocol.KickPlayer{} })
	d.RegisterBoth(protocol.ContainerRoot, uint8(protocol.RootTagAlterGame),
		func() protocol.Message { return &protocol.AlterGame{} })
	d.Register(protocol.ContainerRoot, uint8(protocol.RootTagWaitForHost), s2c,
		func() protocol.Message { return &protocol.WaitForHost{} })
	d.Register(protocol.ContainerRoot, uint8(protocol.RootTagRedirect), s2c,
		func() protocol.Message { return &protocol.Redirect{} })
	d.RegisterBoth(protocol.ContainerRoot, uint8(protocol.RootTagGameData),
		func() protocol.Message { return &protocol.GameDataMessage{} })
	d.RegisterBoth(protocol.ContainerRoot, uint8(protocol.RootTagGameDataTo),
		func() protocol.Message { return &protocol.GameDataToMessage{} })
	d.RegisterBoth(protocol.ContainerRoot, uint8(protocol.RootTagReactor),
		func() protocol.Message { return &protocol.ReactorMessage{} })

	d.RegisterBoth(protocol.ContainerGameData, uint8(protocol.GameDataTagData),
		func() protocol.Message { return &protocol.DataMessage{} })
	d.RegisterBoth(protocol.ContainerGameData, uint8(protocol.GameDataTagRPC),
		func() protocol.Message { return &protocol.RPCMessage{} })
	d.RegisterBoth(protocol.ContainerGameData, uint8(protocol.GameDataTagSpawn),
		func() protocol.Message { return &protocol.SpawnMessage{} })
	d.RegisterBoth(protocol.ContainerGameData, uint8(protocol.GameDataTagDespawn),
		func() protocol.Message { return &protocol.DespawnMessage{} })
	d.RegisterBoth(protocol.ContainerGameData, uint8(protocol.GameDataTagSceneChange),
		func() protocol.Message { return &protocol.SceneChangeMessage{} })
	d.RegisterBoth(protocol.ContainerGameData, uint8(protocol.GameDataTagReady),
		func() protocol.Message { return &protocol.ReadyMessage{} })

	d.RegisterBoth(protocol.ContainerRPC, uint8(protocol.RPCTagSyncSettings),
		func() protocol.Message { return &protocol.SyncSettingsRPC{} })
	d.RegisterBoth(protocol.ContainerRPC, uint8(protocol.RPCTagCheckName),
		func() protocol.Message { return &protocol.CheckNameRPC{} })
	d.RegisterBoth(protocol.ContainerRPC, uint8(protocol.RPCTagSetName),
		func() protocol.Message { return &protocol.SetNameRPC{} })
	d.RegisterBoth(protocol.ContainerRPC, uint8(protocol.RPCTagCheckColor),
		func() protocol.Message { return &protocol.CheckColorRPC{} })
	d.RegisterBoth(protocol.ContainerRPC, uint8(protocol.RPCTagSetColor),
		func() protocol.Message { return &protocol.SetColorRPC{} })
	d.RegisterBoth(protocol.ContainerRPC, uint8(protocol.RPCTagSendChat),
		func() protocol.Message { return &protocol.SendChatRPC{} })
	d.RegisterBoth(protocol.ContainerRPC, uint8(protocol.RPCTagSetStartCounter),
		func() protocol.Message { return &protocol.SetStartCounterRPC{} })
	d.RegisterBoth(protocol.ContainerRPC, uint8(protocol.RPCTagCastVote),
		func() protocol.Message { return &protocol.CastVoteRPC{} })
	d.RegisterBoth(protocol.ContainerRPC, uint8(protocol.RPCTagAddVote),
		func() protocol.Message { return &protocol.AddVoteRPC{} })

	d.RegisterBoth(protocol.ContainerReactor, uint8(protocol.ReactorTagHandshake),
		func() protocol.Message { return &protocol.ReactorHandshake{} })
	d.RegisterBoth(protocol.ContainerReactor, uint8(protocol.ReactorTagModDeclaration),
		func() protocol.Message { return &protocol.ModDeclaration{} })
}
