// Package broker relays broadcast chat records to NATS so that bots and
// other services can follow the room without joining it.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/johndosdos/roomchat/internal/command"
	"github.com/johndosdos/roomchat/internal/config"
	"github.com/johndosdos/roomchat/internal/model"
	"github.com/johndosdos/roomchat/internal/session"
)

type publisher interface {
	PublishMsg(m *nats.Msg) error
}

// Relay publishes chat records. It satisfies room.Relay.
type Relay struct {
	conn   publisher
	prefix string
}

func NewRelay(conn publisher, prefix string) *Relay {
	return &Relay{conn: conn, prefix: prefix}
}

// Connect dials NATS with the credentials in cfg.
func Connect(cfg config.NATS) (*nats.Conn, error) {
	var opts []nats.Option

	if cfg.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	} else if cfg.User != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	opts = append(opts,
		nats.Name("roomchat"),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected to %s", nc.ConnectedUrl())
		}),
	)

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return conn, nil
}

// PublishChat sends rec to the room subject and, for command messages, to
// the command subject as well.
func (r *Relay) PublishChat(ctx context.Context, room session.RoomID, rec model.ChatRecord) error {
	if r.conn == nil {
		return fmt.Errorf("nats connection is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("could not encode chat record to JSON: %w", err)
	}

	subjects := []string{RoomSubject(r.prefix, room)}
	if rec.Type == command.TypeAI || rec.Type == command.TypeMovie {
		subjects = append(subjects, CommandSubject(r.prefix, rec.Type))
	}

	for _, subject := range subjects {
		msg := nats.NewMsg(subject)
		msg.Data = p
		msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
		msg.Header.Set("Chat-Sender", rec.Sender)

		if err := r.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("failed to publish to [%s]: %w", subject, err)
		}
	}
	return nil
}
