package keeper

import (
	"github.com/ValentinKolb/dKeeper/lib/fourlw"
	"github.com/VictoriaMetrics/metrics"
)

// Profile events counted by the keeper
const (
	EventRequests            = "KeeperRequestTotal"
	EventPacketsReceived     = "KeeperPacketsReceived"
	EventPacketsSent         = "KeeperPacketsSent"
	EventCommits             = "KeeperCommits"
	EventCommitsFailed       = "KeeperCommitsFailed"
	EventCreateRequests      = "KeeperCreateRequest"
	EventRemoveRequests      = "KeeperRemoveRequest"
	EventSetRequests         = "KeeperSetRequest"
	EventGetRequests         = "KeeperGetRequest"
	EventListRequests        = "KeeperListRequest"
	EventExistsRequests      = "KeeperExistsRequest"
	EventSessionsOpened      = "KeeperSessionsOpened"
	EventSessionsClosed      = "KeeperSessionsClosed"
	EventSessionsExpired     = "KeeperSessionsExpired"
	EventWatchesTriggered    = "KeeperWatchesTriggered"
	EventSnapshotRequests    = "KeeperSnapshotRequests"
	EventRecoveries          = "KeeperRecoveries"
	EventLeadershipTransfers = "KeeperLeadershipTransfers"
	EventStaleReadFailures   = "KeeperStaleReadFailures"
)

// eventDescriptions defines the order and the descriptions of the profile events
var eventDescriptions = []struct {
	name string
	desc string
}{
	{EventRequests, "Number of client requests"},
	{EventPacketsReceived, "Number of packets received from clients"},
	{EventPacketsSent, "Number of packets sent to clients"},
	{EventCommits, "Number of successfully replicated write requests"},
	{EventCommitsFailed, "Number of write requests that failed to replicate"},
	{EventCreateRequests, "Number of create requests"},
	{EventRemoveRequests, "Number of remove requests"},
	{EventSetRequests, "Number of set requests"},
	{EventGetRequests, "Number of get requests"},
	{EventListRequests, "Number of list requests"},
	{EventExistsRequests, "Number of exists requests"},
	{EventSessionsOpened, "Number of opened sessions"},
	{EventSessionsClosed, "Number of sessions closed by clients"},
	{EventSessionsExpired, "Number of expired sessions"},
	{EventWatchesTriggered, "Number of triggered watches"},
	{EventSnapshotRequests, "Number of manually requested snapshots"},
	{EventRecoveries, "Number of forced recoveries"},
	{EventLeadershipTransfers, "Number of requested leadership transfers"},
	{EventStaleReadFailures, "Number of failed local reads"},
}

// profileEvents holds the event counters in a private metrics set
type profileEvents struct {
	set *metrics.Set
}

func newProfileEvents() *profileEvents {
	e := &profileEvents{set: metrics.NewSet()}
	for _, ev := range eventDescriptions {
		e.set.GetOrCreateCounter(ev.name)
	}
	return e
}

func (e *profileEvents) inc(name string) {
	e.set.GetOrCreateCounter(name).Inc()
}

func (e *profileEvents) list() []fourlw.ProfileEvent {
	events := make([]fourlw.ProfileEvent, 0, len(eventDescriptions))
	for _, ev := range eventDescriptions {
		events = append(events, fourlw.ProfileEvent{
			Name:        ev.name,
			Value:       e.set.GetOrCreateCounter(ev.name).Get(),
			Description: ev.desc,
		})
	}
	return events
}
