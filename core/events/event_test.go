package events

import "testing"

func TestBufferDrainAndTruncate(t *testing.T) {
	var buf Buffer
	buf.Emit(New("a"))
	mark := buf.Mark()
	buf.Emit(New("b").With("loanId", "1"))
	buf.Emit(nil)
	buf.Truncate(mark)

	drained := buf.Drain()
	if len(drained) != 1 || drained[0].Type != "a" {
		t.Fatalf("expected only event a, got %+v", drained)
	}
	if len(buf.Drain()) != 0 {
		t.Fatalf("expected empty buffer after drain")
	}
}

func TestFanoutDeliversToEverySubscriber(t *testing.T) {
	first, second := &Recorder{}, &Recorder{}
	Fanout{first, nil, second}.Emit(New("loan.started").With("loanId", "7"))

	for _, rec := range []*Recorder{first, second} {
		got := rec.OfType("loan.started")
		if len(got) != 1 || got[0].Attr("loanId") != "7" {
			t.Fatalf("unexpected recorded events: %+v", rec.Events())
		}
	}
	var missing *Event
	if missing.Attr("x") != "" {
		t.Fatalf("nil event attr should be empty")
	}
}
