/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/shopfloor/internal/events"
)

func TestNATSMessageCarriesEventAndNode(t *testing.T) {
	data, err := marshalNATSMessage(events.EventPlacementMoved, events.Payload{"job_id": "j2"}, "node-a")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	msg, err := unmarshalNATSMessage(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.EventType != events.EventPlacementMoved || msg.NodeID != "node-a" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.MessageID == "" {
		t.Fatal("expected message id")
	}
}

func TestUnmarshalRejectsMissingEventType(t *testing.T) {
	if _, err := unmarshalNATSMessage([]byte(`{"payload":{}}`)); err == nil {
		t.Fatal("expected error for message without event type")
	}
	if _, err := unmarshalNATSMessage([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed message")
	}
}

func TestRemoteMessagesReachLocalSubscribersOnly(t *testing.T) {
	local := events.NewBus()
	nb := &NATSBus{local: local, nodeID: "self", logger: zerolog.Nop()}
	sub := local.Subscribe(events.EventCascadeCompleted)

	own, _ := marshalNATSMessage(events.EventCascadeCompleted, events.Payload{"from": "self"}, "self")
	nb.handle(&nats.Msg{Subject: SubjectPrefix + "cascade.completed", Data: own})
	if len(sub) != 0 {
		t.Fatal("own echo must be ignored")
	}

	remote, _ := marshalNATSMessage(events.EventCascadeCompleted, events.Payload{"from": "peer"}, "peer")
	nb.handle(&nats.Msg{Subject: SubjectPrefix + "cascade.completed", Data: remote})
	got := <-sub
	if got["from"] != "peer" || !got.Remote() || got[events.OriginNodeKey] != "peer" {
		t.Fatalf("unexpected payload %v", got)
	}
}
