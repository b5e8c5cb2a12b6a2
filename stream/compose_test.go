package stream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/kbukum/streamkit/errors"
)

func TestIter_BuffersUntilPulled(t *testing.T) {
	s := New[int]()
	it := s.Iter()
	defer it.Close()

	_ = s.Push(1, 2)
	_ = s.Fail(errors.New("mid"))
	_ = s.Push(3)
	s.Close()

	ctx := context.Background()
	var got []string
	for {
		v, ok, err := it.Next(ctx)
		if err != nil {
			got = append(got, "err:"+err.Error())
			continue
		}
		if !ok {
			break
		}
		got = append(got, strconv.Itoa(v))
	}
	want := []string{"1", "2", "err:mid", "3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestIter_SessionsAreIndependent(t *testing.T) {
	s := New[int]()
	a, b := s.Iter(), s.Iter()
	_ = s.Push(1, 2)
	s.Close()

	ctx := context.Background()
	ga, _ := Collect(ctx, a)
	gb, _ := Collect(ctx, b)
	if diff := cmp.Diff([]int{1, 2}, ga); diff != "" {
		t.Errorf("session a (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2}, gb); diff != "" {
		t.Errorf("session b (-want +got):\n%s", diff)
	}
}

func TestIter_CloseDiscardsAndUnsubscribes(t *testing.T) {
	s := New[int]()
	it := s.Iter()
	_ = s.Push(1)
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
	_ = it.Close()
	if s.HasListeners() {
		t.Error("session still registered")
	}
	_, ok, err := it.Next(context.Background())
	if ok || err != nil {
		t.Errorf("Next after Close = (%v, %v)", ok, err)
	}
}

func TestIter_NextHonoursContext(t *testing.T) {
	s := New[int]()
	it := s.Iter()
	defer it.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err := it.Next(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestStreamNext_ResolvesWithNextValue(t *testing.T) {
	s := New[string]()
	go func() {
		for !s.HasListeners() {
			time.Sleep(time.Millisecond)
		}
		_ = s.Push("hello")
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := s.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v != "hello" {
		t.Errorf("v = %q", v)
	}
	if s.HasListeners() {
		t.Error("Next left its session registered")
	}
}

func TestStreamNext_ClosedStream(t *testing.T) {
	s := New[int]()
	s.Close()
	_, err := s.Next(context.Background())
	if !errors.Is(err, apperrors.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestAll_RangeAndBreak(t *testing.T) {
	s := New[int]()
	done := make(chan []int)
	ready := make(chan struct{})
	go func() {
		var got []int
		seq := s.All(context.Background())
		close(ready)
		for v, err := range seq {
			if err != nil {
				continue
			}
			got = append(got, v)
			if len(got) == 2 {
				break
			}
		}
		done <- got
	}()
	<-ready
	waitFor(t, s.HasListeners)
	_ = s.Push(1, 2, 3)

	select {
	case got := <-done:
		if diff := cmp.Diff([]int{1, 2}, got); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("range did not finish")
	}
	waitFor(t, func() bool { return !s.HasListeners() })
}

func TestTake(t *testing.T) {
	s := FromSlice([]int{5, 6, 7, 8})
	got, err := Take(context.Background(), s, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{5, 6}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFromSlice_Collect(t *testing.T) {
	got, err := Collect(context.Background(), FromSlice([]int{1, 2, 3}).Iter())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFromChannel(t *testing.T) {
	ch := make(chan int, 3)
	ch <- 1
	ch <- 2
	ch <- 3
	close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := Collect(ctx, FromChannel(ch).Iter())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFromIterator_ErrorEndsStream(t *testing.T) {
	src := New[int]()
	in := src.Iter()
	out := FromIterator(in)
	it := out.Iter()
	defer it.Close()

	_ = src.Push(1)
	_ = src.Fail(errors.New("broken"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, ok, err := it.Next(ctx)
	if !ok || err != nil || v != 1 {
		t.Fatalf("first = (%d, %v, %v)", v, ok, err)
	}
	_, _, err = it.Next(ctx)
	if err == nil || err.Error() != "broken" {
		t.Fatalf("second err = %v, want broken", err)
	}
	_, ok, err = it.Next(ctx)
	if ok || err != nil {
		t.Errorf("third = (%v, %v), want exhausted", ok, err)
	}
}

func TestMapAndFilter(t *testing.T) {
	src := New[int](WithName("numbers"))
	labels := Map(src.Filter(func(v int) bool { return v%2 == 0 }), strconv.Itoa)
	if got := labels.Name(); got != "numbers.filter.map" {
		t.Errorf("Name() = %q", got)
	}
	if src.HasListeners() {
		t.Fatal("cold chain subscribed before being observed")
	}

	it := labels.Iter()
	if !src.HasListeners() {
		t.Fatal("observing the chain did not subscribe upstream")
	}
	_ = src.Push(1, 2, 3, 4)
	src.Close()

	got, err := Collect(context.Background(), it)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"2", "4"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if !labels.Closed() {
		t.Error("upstream close did not propagate")
	}
}

func TestFilter_UnsubscribesUpstreamWhenUnobserved(t *testing.T) {
	src := New[int]()
	evens := src.Filter(func(v int) bool { return v%2 == 0 })
	unsub := evens.Listen(func(int) {})
	if src.ListenerCount() != 1 {
		t.Fatalf("upstream listeners = %d, want 1", src.ListenerCount())
	}
	unsub()
	if src.HasListeners() {
		t.Error("upstream still subscribed")
	}
}

func TestFilter_ErrorsStayUpstream(t *testing.T) {
	src := New[int]()
	derived := src.Filter(func(int) bool { return true })
	var errs int
	derived.OnError(func(error) { errs++ })
	_ = src.Fail(errors.New("x"))
	if errs != 0 {
		t.Errorf("derived stream received %d upstream errors", errs)
	}
}

func TestFilterState_DistinctUntilChanged(t *testing.T) {
	src := New[int]()
	distinct := FilterState(src, 0, func(prev, v int) (bool, int) {
		return v != prev, v
	})
	var got []int
	distinct.Listen(func(v int) { got = append(got, v) })
	_ = src.Push(1, 1, 2, 2, 2, 1)
	if diff := cmp.Diff([]int{1, 2, 1}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFilterFunc_KeepsArrivalOrder(t *testing.T) {
	src := New[int]()
	evens := FilterFunc(src, func(ctx context.Context, v int) (bool, error) {
		time.Sleep(time.Duration(5-v) * time.Millisecond)
		return v%2 == 0, nil
	})
	it := evens.Iter()
	_ = src.Push(1, 2, 3, 4)
	src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := Collect(ctx, it)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{2, 4}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFilterFunc_PredicateErrorIsPositional(t *testing.T) {
	src := New[int]()
	out := FilterFunc(src, func(_ context.Context, v int) (bool, error) {
		if v == 2 {
			return false, errors.New("cannot judge")
		}
		return true, nil
	})
	it := out.Iter()
	defer it.Close()
	_ = src.Push(1, 2, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var got []string
	for len(got) < 3 {
		v, ok, err := it.Next(ctx)
		switch {
		case err != nil:
			if apperrors.CodeOf(err) != apperrors.ErrCodeTransformFailed {
				t.Fatalf("unexpected error %v", err)
			}
			got = append(got, "err")
		case !ok:
			t.Fatal("stream ended early")
		default:
			got = append(got, strconv.Itoa(v))
		}
	}
	if diff := cmp.Diff([]string{"1", "err", "3"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestMerge(t *testing.T) {
	a, b := New[string](), New[string]()
	merged := Merge([]*Stream[string]{a, b}, WithName("letters"))
	if merged.Name() != "letters" {
		t.Errorf("Name() = %q, want letters", merged.Name())
	}
	var got []string
	merged.Listen(func(v string) { got = append(got, v) })

	_ = a.Push("a1")
	_ = b.Push("b1")
	_ = a.Push("a2")
	a.Close()
	if merged.Closed() {
		t.Fatal("merged closed with an input still open")
	}
	b.Close()

	if diff := cmp.Diff([]string{"a1", "b1", "a2"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if !merged.Closed() {
		t.Error("merged not closed after all inputs closed")
	}
}

func TestMerge_NoInputs(t *testing.T) {
	merged := Merge[int](nil)
	if merged.Name() != "merge" {
		t.Errorf("Name() = %q, want merge", merged.Name())
	}
	got, err := Collect(context.Background(), merged.Iter())
	if err != nil || len(got) != 0 {
		t.Errorf("got (%v, %v), want empty", got, err)
	}
}

func TestPipe(t *testing.T) {
	src := New[int]()
	double := Transformer[int, int](func(s *Stream[int]) *Stream[int] {
		return Map(s, func(v int) int { return v * 2 })
	})
	positive := Transformer[int, int](func(s *Stream[int]) *Stream[int] {
		return s.Filter(func(v int) bool { return v > 0 })
	})
	text := Pipe(src.Pipe(double, positive), Transformer[int, string](func(s *Stream[int]) *Stream[string] {
		return Map(s, strconv.Itoa)
	}))

	var got []string
	text.Listen(func(v string) { got = append(got, v) })
	_ = src.Push(-1, 1, 2)
	if diff := cmp.Diff([]string{"2", "4"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestGenerate_RunningSum(t *testing.T) {
	src := New[int]()
	sums := Generate(src, func(ctx context.Context, in Iterator[int], out Emitter[string]) error {
		total := 0
		for {
			v, ok, err := in.Next(ctx)
			if err != nil || !ok {
				return err
			}
			total += v
			if err := out.Push(fmt.Sprintf("sum=%d", total)); err != nil {
				return nil
			}
		}
	})
	it := sums.Iter()
	_ = src.Push(1, 2, 3)
	src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := Collect(ctx, it)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"sum=1", "sum=3", "sum=6"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFromFunc_StopCancelsProducer(t *testing.T) {
	stopped := make(chan struct{})
	s := FromFunc(func(ctx context.Context, emit Emitter[int]) error {
		<-ctx.Done()
		close(stopped)
		return nil
	})
	unsub := s.Listen(func(int) {})
	unsub()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("producer not canceled")
	}
	if s.Closed() {
		t.Error("deactivation must not close the stream")
	}
}
