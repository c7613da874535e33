package order

// Section names a vendor-queue segment.
type Section string

const (
	SectionUpcoming Section = "upcoming"
	SectionQueue    Section = "queue"
	SectionReady    Section = "ready"
)

// QueueEntry is one sub-order as seen in a vendor's live queue.
type QueueEntry struct {
	SubOrderID    string `json:"subOrderId"`
	ParentOrderID string `json:"parentOrderId"`
	UserID        string `json:"userId,omitempty"`
	Status        Status `json:"status"`
	PlacedAt      int64  `json:"placedAt,omitempty"` // Unix milliseconds
}

// VendorQueue is the live view of one vendor's order queue, segmented into
// upcoming (not yet accepted), queue (being worked), and ready (for pickup).
type VendorQueue struct {
	VendorID string       `json:"vendorId"`
	Upcoming []QueueEntry `json:"upcoming"`
	Queue    []QueueEntry `json:"queue"`
	Ready    []QueueEntry `json:"ready"`
}

// Clone returns a deep copy safe to hand to consumers.
func (q *VendorQueue) Clone() VendorQueue {
	out := VendorQueue{VendorID: q.VendorID}
	out.Upcoming = append([]QueueEntry(nil), q.Upcoming...)
	out.Queue = append([]QueueEntry(nil), q.Queue...)
	out.Ready = append([]QueueEntry(nil), q.Ready...)
	return out
}

// sectionFor maps a sub-order status to the queue section it belongs in.
// Terminal statuses have no section: the entry leaves the queue.
func sectionFor(s Status) (Section, bool) {
	switch s {
	case StatusPending:
		return SectionUpcoming, true
	case StatusAccepted, StatusPreparing:
		return SectionQueue, true
	case StatusReady:
		return SectionReady, true
	}
	return "", false
}

// remove deletes the entry with the given sub-order id from every section.
func (q *VendorQueue) remove(subOrderID string) bool {
	removed := false
	filter := func(entries []QueueEntry) []QueueEntry {
		out := entries[:0]
		for _, e := range entries {
			if e.SubOrderID == subOrderID {
				removed = true
				continue
			}
			out = append(out, e)
		}
		return out
	}
	q.Upcoming = filter(q.Upcoming)
	q.Queue = filter(q.Queue)
	q.Ready = filter(q.Ready)
	return removed
}

// place puts the entry into the section matching its status, removing any
// prior placement first. Entries with terminal statuses are removed only.
// Idempotent: placing the same entry twice leaves one copy.
func (q *VendorQueue) place(e QueueEntry) {
	q.remove(e.SubOrderID)

	section, ok := sectionFor(e.Status)
	if !ok {
		return
	}
	switch section {
	case SectionUpcoming:
		q.Upcoming = append(q.Upcoming, e)
	case SectionQueue:
		q.Queue = append(q.Queue, e)
	case SectionReady:
		q.Ready = append(q.Ready, e)
	}
}

// replaceSection swaps one section's entry list wholesale.
func (q *VendorQueue) replaceSection(section Section, entries []QueueEntry) {
	fresh := append([]QueueEntry(nil), entries...)
	switch section {
	case SectionUpcoming:
		q.Upcoming = fresh
	case SectionQueue:
		q.Queue = fresh
	case SectionReady:
		q.Ready = fresh
	}
}
