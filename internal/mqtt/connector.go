package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"go.uber.org/zap"

	"chargehub/internal/observability/metrics"
)

// Handler consumes decoded telemetry messages.
type Handler interface {
	HandleUsage(ctx context.Context, deviceID string, msg UsageMessage)
	HandleStatus(ctx context.Context, deviceID string, msg StatusMessage)
}

// Config carries broker connection settings.
type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
}

// ErrNotConnected is returned when publishing before Connect.
var ErrNotConnected = errors.New("mqtt: not connected")

// Connector owns the broker connection. Inbound usage and status messages are
// decoded and fanned out to the handler; outbound control commands go through
// PublishControl at QoS 1.
type Connector struct {
	cliCfg  autopaho.ClientConfig
	router  *paho.StandardRouter
	logger  *zap.Logger
	handler Handler

	mu   sync.Mutex
	cm   *autopaho.ConnectionManager
	subs []paho.SubscribeOptions

	baseCtx context.Context
}

// NewConnector builds the client configuration without touching the network.
func NewConnector(cfg Config, logger *zap.Logger) (*Connector, error) {
	u, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, err
	}

	c := &Connector{
		router:  paho.NewStandardRouter(),
		logger:  logger,
		baseCtx: context.Background(),
	}

	c.cliCfg = autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     20,
		CleanStartOnInitialConnection: false,
		SessionExpiryInterval:         60,
		ConnectUsername:               cfg.Username,
		ConnectPassword:               []byte(cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			logger.Info("mqtt connection up")
			c.resubscribe(cm)
		},
		OnConnectError: func(err error) {
			logger.Warn("mqtt connect attempt failed", zap.Error(err))
		},
		ClientConfig: paho.ClientConfig{
			ClientID: cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					c.router.Route(pr.Packet.Packet())
					return true, nil
				},
			},
			OnClientError: func(err error) {
				logger.Warn("mqtt client error", zap.Error(err))
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil {
					logger.Warn("mqtt server disconnect", zap.String("reason", d.Properties.ReasonString))
				} else {
					logger.Warn("mqtt server disconnect", zap.Int("reason_code", int(d.ReasonCode)))
				}
			},
		},
	}

	return c, nil
}

// Connect establishes the managed connection and waits for the first attach.
// The supplied context also bounds handler execution for inbound messages.
func (c *Connector) Connect(ctx context.Context) error {
	c.baseCtx = ctx
	cm, err := autopaho.NewConnection(ctx, c.cliCfg)
	if err != nil {
		return err
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.cm = cm
	c.mu.Unlock()
	return nil
}

// SubscribeTelemetry registers the usage and status routes and subscribes to
// both device wildcards. Subscriptions survive reconnects.
func (c *Connector) SubscribeTelemetry(ctx context.Context, handler Handler) error {
	c.handler = handler
	c.router.RegisterHandler(UsageWildcard, c.onUsage)
	c.router.RegisterHandler(StatusWildcard, c.onStatus)

	subs := []paho.SubscribeOptions{
		{Topic: UsageWildcard, QoS: 1},
		{Topic: StatusWildcard, QoS: 1},
	}

	c.mu.Lock()
	cm := c.cm
	c.subs = subs
	c.mu.Unlock()

	if cm == nil {
		return ErrNotConnected
	}
	_, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs})
	return err
}

func (c *Connector) resubscribe(cm *autopaho.ConnectionManager) {
	c.mu.Lock()
	subs := c.subs
	c.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	if _, err := cm.Subscribe(c.baseCtx, &paho.Subscribe{Subscriptions: subs}); err != nil {
		c.logger.Warn("mqtt resubscribe failed", zap.Error(err))
	}
}

// PublishControl sends one relay command to a device at QoS 1.
func (c *Connector) PublishControl(ctx context.Context, deviceID string, cmd ControlCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	c.mu.Lock()
	cm := c.cm
	c.mu.Unlock()
	if cm == nil {
		return ErrNotConnected
	}

	_, err = cm.Publish(ctx, &paho.Publish{
		QoS:     1,
		Topic:   ControlTopic(deviceID),
		Payload: payload,
	})
	return err
}

// Disconnect closes the broker connection.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	cm := c.cm
	c.cm = nil
	c.mu.Unlock()
	if cm == nil {
		return nil
	}
	return cm.Disconnect(ctx)
}

func (c *Connector) onUsage(p *paho.Publish) {
	deviceID, ok := DeviceFromTopic(p.Topic)
	if !ok {
		c.logger.Warn("usage message on unroutable topic", zap.String("topic", p.Topic))
		metrics.TelemetryMessagesTotal.WithLabelValues("usage", "malformed").Inc()
		return
	}
	msg, err := ParseUsageMessage(p.Payload)
	if err != nil {
		c.logger.Warn("dropping malformed usage payload",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		metrics.TelemetryMessagesTotal.WithLabelValues("usage", "malformed").Inc()
		return
	}
	c.handler.HandleUsage(c.baseCtx, deviceID, msg)
}

func (c *Connector) onStatus(p *paho.Publish) {
	deviceID, ok := DeviceFromTopic(p.Topic)
	if !ok {
		c.logger.Warn("status message on unroutable topic", zap.String("topic", p.Topic))
		metrics.TelemetryMessagesTotal.WithLabelValues("status", "malformed").Inc()
		return
	}
	msg, err := ParseStatusMessage(p.Payload)
	if err != nil {
		c.logger.Warn("dropping malformed status payload",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		metrics.TelemetryMessagesTotal.WithLabelValues("status", "malformed").Inc()
		return
	}
	c.handler.HandleStatus(c.baseCtx, deviceID, msg)
}
