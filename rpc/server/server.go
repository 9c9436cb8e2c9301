package server

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/dKeeper/lib/fourlw"
	"github.com/ValentinKolb/dKeeper/lib/keeper"
	"github.com/ValentinKolb/dKeeper/rpc/common"
	"github.com/ValentinKolb/dKeeper/rpc/serializer"
	"github.com/ValentinKolb/dKeeper/rpc/transport"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPDefaultServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		adapter:    NewKeeperServerAdapter(config.Timeout()),
	}
}

// RPCServer serves the client port and the four letter words of one replica
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	adapter    IRPCServerAdapter

	nodeHost *dragonboat.NodeHost
	keeper   *keeper.Keeper
	registry *fourlw.Registry
}

// keeperConfig maps the server configuration onto the keeper
func (s *RPCServer) keeperConfig() keeper.Config {
	ms := func(v int64) time.Duration { return time.Duration(v) * time.Millisecond }
	return keeper.Config{
		ShardID:                 s.config.ShardID,
		ReplicaID:               s.config.ReplicaID,
		Timeout:                 s.config.Timeout(),
		MinSessionTimeout:       ms(s.config.MinSessionTimeoutMs),
		MaxSessionTimeout:       ms(s.config.MaxSessionTimeoutMs),
		DeadSessionCheckPeriod:  ms(s.config.DeadSessionCheckPeriodMs),
		LogDir:                  s.config.LogDir(),
		SnapshotDir:             s.config.SnapshotDir(),
		HeapProfileDir:          s.config.HeapProfileDir,
		FourLetterWordAllowList: s.config.FourLetterWordAllowList,
		Features:                s.config.FeatureFlags,
		Settings:                s.config.Settings(),
	}
}

// handleRequest decodes a framed request, lets the adapter handle it and
// encodes the response
func (s *RPCServer) handleRequest(connID uint64, shardID uint64, req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	if shardID != s.config.ShardID {
		// Case shard does not exist -> error
		respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardID))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		// Let the adapter handle the request
		respMsg = s.adapter.Handle(connID, &msg, s.keeper)
	}

	// Return result
	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

func (s *RPCServer) init() error {

	// Init logger
	common.InitLoggers(s.config)

	k, err := keeper.New(s.keeperConfig())
	if err != nil {
		return fmt.Errorf("failed to create keeper: %w", err)
	}

	// Create the Dragonboat NodeHost
	nodeHost, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
	if err != nil {
		return fmt.Errorf("failed to create node host: %w", err)
	}

	// Start Raft for the shard, joining replicas learn the members from the shard
	members := s.config.ClusterMembers
	if s.config.Join {
		members = nil
	}
	factory := k.StateMachineFactory()
	raftConfig := s.config.ToDragonboatConfig()
	if err := nodeHost.StartConcurrentReplica(members, s.config.Join, factory, raftConfig); err != nil {
		nodeHost.Close()
		return fmt.Errorf("failed to start shard %d: %w", s.config.ShardID, err)
	}
	k.Start(keeper.NewRaftHost(nodeHost, raftConfig, factory, s.config.Timeout()))

	// Four letter words
	registry := fourlw.NewRegistry()
	if err := fourlw.RegisterCommands(registry, k); err != nil {
		k.Close()
		nodeHost.Close()
		return fmt.Errorf("failed to register four letter words: %w", err)
	}
	if err := registry.InitializeAllowList(k); err != nil {
		k.Close()
		nodeHost.Close()
		return fmt.Errorf("failed to initialize four letter word allow list: %w", err)
	}

	s.nodeHost = nodeHost
	s.keeper = k
	s.registry = registry

	Logger.Infof("dKeeper setup completed successfully")

	// Configure the transport layer
	s.transport.RegisterPrefixHandler(registry.Dispatch)
	s.transport.RegisterConnectionHooks(transport.ConnectionHooks{
		Opened: k.ConnectionOpened,
		Closed: k.ConnectionClosed,
	})
	s.transport.RegisterHandler(s.handleRequest)

	return nil
}

// Serve starts the RPC server
// This function will also initialize the keeper plus the replica and start
// the transport layer. It returns after SIGINT or SIGTERM.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.transport.Listen(s.config)
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case received := <-sig:
		Logger.Infof("Received %s, shutting down", received)
		s.Close()
		return <-errCh
	}
}

// Close stops the transport, the keeper and the node host
func (s *RPCServer) Close() {
	if err := s.transport.Close(); err != nil {
		Logger.Warningf("failed to close transport: %v", err)
	}
	if s.keeper != nil {
		s.keeper.Close()
	}
	if s.nodeHost != nil {
		s.nodeHost.Close()
	}
}
