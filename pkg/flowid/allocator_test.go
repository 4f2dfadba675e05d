package flowid

import (
	"sync"
	"testing"
)

func TestClaimReleaseInUse(t *testing.T) {
	a := New()
	if a.InUse(5) {
		t.Fatal("fresh allocator reports 5 in use")
	}
	if !a.Claim(5) {
		t.Fatal("Claim(5) failed on fresh allocator")
	}
	if !a.InUse(5) {
		t.Fatal("InUse(5) false after Claim(5)")
	}
	if a.Claim(5) {
		t.Fatal("second Claim(5) succeeded, want collision")
	}
	a.Release(5)
	if a.InUse(5) {
		t.Fatal("InUse(5) true after Release(5)")
	}
	if !a.Claim(5) {
		t.Fatal("Claim(5) failed after release")
	}
}

// TestClaimCollision matches spec.md §8's allocator invariant: after
// claim(x) && !release(x), claim(x) returns false for any caller.
func TestClaimCollision(t *testing.T) {
	a := New()
	const flow = 42
	if !a.Claim(flow) {
		t.Fatal("initial claim failed")
	}
	var wg sync.WaitGroup
	results := make([]bool, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.Claim(flow)
		}(i)
	}
	wg.Wait()
	for i, got := range results {
		if got {
			t.Errorf("concurrent Claim(%d) call %d succeeded, want false", flow, i)
		}
	}
}

func TestAllocateRandomUnique(t *testing.T) {
	a := New()
	seen := make(map[uint64]struct{})
	for i := 0; i < 200; i++ {
		v := a.AllocateRandom()
		if _, dup := seen[v]; dup {
			t.Fatalf("AllocateRandom returned duplicate %d", v)
		}
		seen[v] = struct{}{}
		if v > MaxRandom {
			t.Fatalf("AllocateRandom returned %d, exceeds MaxRandom %d", v, MaxRandom)
		}
	}
}

func TestClaimPairAutoBoth(t *testing.T) {
	a := New()
	const auto = ^uint64(0)
	rtp, rtcp, ok := a.ClaimPair(auto, auto)
	if !ok {
		t.Fatal("ClaimPair with both auto failed")
	}
	if rtcp != rtp+1 {
		t.Errorf("rtcp = %d, want rtp+1 = %d", rtcp, rtp+1)
	}
	if !a.InUse(rtp) || !a.InUse(rtcp) {
		t.Error("ClaimPair did not leave both ids claimed")
	}
}

func TestClaimPairExplicit(t *testing.T) {
	a := New()
	rtp, rtcp, ok := a.ClaimPair(10, 20)
	if !ok || rtp != 10 || rtcp != 20 {
		t.Fatalf("ClaimPair(10, 20) = (%d, %d, %v), want (10, 20, true)", rtp, rtcp, ok)
	}
}

func TestClaimPairSameID(t *testing.T) {
	a := New()
	rtp, rtcp, ok := a.ClaimPair(7, 7)
	if !ok || rtp != 7 || rtcp != 7 {
		t.Fatalf("ClaimPair(7, 7) = (%d, %d, %v), want (7, 7, true)", rtp, rtcp, ok)
	}
	if !a.InUse(7) {
		t.Error("shared rtp==rtcp id not claimed")
	}
}

// TestClaimPairRollback checks that a failed RTCP claim releases the
// RTP claim this call just made, leaving the allocator as if the call
// never happened.
func TestClaimPairRollback(t *testing.T) {
	a := New()
	if !a.Claim(99) {
		t.Fatal("setup claim failed")
	}
	_, _, ok := a.ClaimPair(50, 99)
	if ok {
		t.Fatal("ClaimPair succeeded despite rtcp collision")
	}
	if a.InUse(50) {
		t.Error("rtp claim was not rolled back after rtcp collision")
	}
	if !a.InUse(99) {
		t.Error("pre-existing rtcp claim was released by failed ClaimPair")
	}
}

func TestDefaultSingleton(t *testing.T) {
	if Default() != Default() {
		t.Fatal("Default() returned different instances")
	}
}
