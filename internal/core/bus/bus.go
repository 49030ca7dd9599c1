package bus

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Embedded selects the in-process NATS server.
const Embedded = "embedded"

// Options 总线配置
type Options struct {
	// URL is a nats:// address, Embedded, or empty to run without a bus.
	URL string
	// StoreDir holds JetStream data for the embedded server.
	StoreDir string
	// Port for the embedded server. 0 picks the default with a fallback.
	Port int
}

// Bus owns the NATS connection and, when embedded, the server behind it.
type Bus struct {
	conn   *nats.Conn
	server *server.Server
}

// Open connects to NATS. An empty URL returns (nil, nil).
func Open(opts Options) (*Bus, error) {
	switch opts.URL {
	case "":
		return nil, nil
	case Embedded:
		return openEmbedded(opts)
	default:
		nc, err := nats.Connect(opts.URL,
			nats.Name("pizzeria-alerts"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(10),
			nats.ReconnectWait(5*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("连接NATS失败: %w", err)
		}
		log.Info().Str("url", opts.URL).Msg("connected to NATS")
		return &Bus{conn: nc}, nil
	}
}

func openEmbedded(opts Options) (*Bus, error) {
	port := opts.Port
	if port == 0 {
		port = freePort(4222, 14222)
		if port == 0 {
			return nil, fmt.Errorf("无法找到可用的端口")
		}
	}
	storeDir := opts.StoreDir
	if storeDir == "" {
		storeDir = "./data/jetstream"
	}

	ns, err := server.NewServer(&server.Options{
		ServerName: "pizzeria-alerts-embedded",
		Host:       "127.0.0.1",
		Port:       port,
		JetStream:  true,
		StoreDir:   storeDir,
	})
	if err != nil {
		return nil, fmt.Errorf("创建嵌入式 NATS 服务器失败: %w", err)
	}

	log.Info().Int("port", port).Msg("启动嵌入式 NATS 服务器")
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("嵌入式 NATS 服务器启动超时")
	}

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(2*time.Second))
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("无法连接到 NATS 服务器: %w", err)
	}
	return &Bus{conn: nc, server: ns}, nil
}

func freePort(candidates ...int) int {
	for _, port := range candidates {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			log.Warn().Int("port", port).Msg("端口被占用，尝试备用端口")
			continue
		}
		ln.Close()
		return port
	}
	return 0
}

// Conn returns the client connection.
func (b *Bus) Conn() *nats.Conn {
	if b == nil {
		return nil
	}
	return b.conn
}

// Embedded reports whether the bus runs its own server.
func (b *Bus) Embedded() bool {
	return b != nil && b.server != nil
}

// Publish sends v as JSON on a core NATS subject.
func (b *Bus) Publish(subject string, v interface{}) error {
	if b == nil || b.conn == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}
	return b.conn.Publish(subject, data)
}

// Close drains the connection and shuts the embedded server down.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if b.conn != nil {
		if err := b.conn.Drain(); err != nil {
			b.conn.Close()
		}
	}
	if b.server != nil {
		b.server.Shutdown()
		b.server.WaitForShutdown()
	}
}
