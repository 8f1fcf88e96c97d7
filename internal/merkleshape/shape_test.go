package merkleshape

import "testing"

func TestForContentBasic(t *testing.T) {
	// 10 MiB content, 1 MiB chunks -> 10 leaves, capacity rounds to 16.
	s, err := ForContent(10*1024*1024, 1024*1024)
	if err != nil {
		t.Fatalf("ForContent failed: %v", err)
	}
	if s.LeafCount != 10 {
		t.Errorf("LeafCount = %d, want 10", s.LeafCount)
	}
	if s.CapLeaf != 16 {
		t.Errorf("CapLeaf = %d, want 16", s.CapLeaf)
	}
	if s.NodeCount != 2*16-1 {
		t.Errorf("NodeCount = %d, want %d", s.NodeCount, 2*16-1)
	}
	if s.InternalCount != 15 {
		t.Errorf("InternalCount = %d, want 15", s.InternalCount)
	}
}

func TestForContentRejectsNonPow2ChunkSize(t *testing.T) {
	if _, err := ForContent(100, 3); err == nil {
		t.Fatal("expected error for non power-of-two chunk size")
	}
}

func TestForContentRejectsNegativeContentSize(t *testing.T) {
	if _, err := ForContent(-1, 1024); err == nil {
		t.Fatal("expected error for negative content size")
	}
}

func TestForContentEmpty(t *testing.T) {
	s, err := ForContent(0, 4096)
	if err != nil {
		t.Fatalf("ForContent failed: %v", err)
	}
	if s.LeafCount != 0 {
		t.Errorf("LeafCount = %d, want 0", s.LeafCount)
	}
	if s.CapLeaf != 1 {
		t.Errorf("CapLeaf = %d, want 1 (single virtual leaf)", s.CapLeaf)
	}
	if s.NodeCount != 1 {
		t.Errorf("NodeCount = %d, want 1", s.NodeCount)
	}
}

func TestForContentExactMultiple(t *testing.T) {
	s, err := ForContent(4*4096, 4096)
	if err != nil {
		t.Fatalf("ForContent failed: %v", err)
	}
	if s.LeafCount != 4 {
		t.Errorf("LeafCount = %d, want 4", s.LeafCount)
	}
	if s.CapLeaf != 4 {
		t.Errorf("CapLeaf = %d, want 4 (exact power of two)", s.CapLeaf)
	}
}

func TestGeometryInvariantP3(t *testing.T) {
	// P3: leafCount <= capLeaf <= 2*leafCount, nodeCount == 2*capLeaf-1
	sizes := []int64{0, 1, 4095, 4096, 4097, 1<<20 + 17, 10 * 1024 * 1024}
	for _, sz := range sizes {
		s, err := ForContent(sz, 4096)
		if err != nil {
			t.Fatalf("ForContent(%d) failed: %v", sz, err)
		}
		if s.CapLeaf < s.LeafCount {
			t.Errorf("size %d: capLeaf %d < leafCount %d", sz, s.CapLeaf, s.LeafCount)
		}
		if s.LeafCount > 0 && s.CapLeaf > 2*s.LeafCount {
			t.Errorf("size %d: capLeaf %d > 2*leafCount %d", sz, s.CapLeaf, s.LeafCount)
		}
		if s.NodeCount != 2*s.CapLeaf-1 {
			t.Errorf("size %d: nodeCount %d != 2*capLeaf-1 (%d)", sz, s.NodeCount, 2*s.CapLeaf-1)
		}
	}
}

func TestChunkRangeClamping(t *testing.T) {
	s, err := ForContent(10, 4) // 3 leaves: [0,4) [4,8) [8,10)
	if err != nil {
		t.Fatal(err)
	}
	lo, hi := s.ChunkRange(2)
	if lo != 8 || hi != 10 {
		t.Errorf("ChunkRange(2) = [%d,%d), want [8,10)", lo, hi)
	}
	lo, hi = s.ChunkRange(0)
	if lo != 0 || hi != 4 {
		t.Errorf("ChunkRange(0) = [%d,%d), want [0,4)", lo, hi)
	}
}

func TestIsVirtual(t *testing.T) {
	s, err := ForContent(10, 4) // leafCount=3, capLeaf=4
	if err != nil {
		t.Fatal(err)
	}
	for c := int64(0); c < 3; c++ {
		if s.IsVirtual(c) {
			t.Errorf("chunk %d should not be virtual", c)
		}
	}
	if !s.IsVirtual(3) {
		t.Error("chunk 3 should be virtual")
	}
}

func TestAncestorsOf(t *testing.T) {
	s, err := ForContent(4*4096, 4096) // capLeaf=4, nodeCount=7: 0,1,2 internal; 3,4,5,6 leaves
	if err != nil {
		t.Fatal(err)
	}
	var got []int64
	s.AncestorsOf(0, func(idx int64) bool {
		got = append(got, idx)
		return true
	})
	want := []int64{1, 0}
	if len(got) != len(want) {
		t.Fatalf("AncestorsOf(0) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AncestorsOf(0)[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestLeafIndexAndBoundary(t *testing.T) {
	s, err := ForContent(10*1024*1024, 1024*1024)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.LeafIndex(3*1024*1024 + 1); got != 3 {
		t.Errorf("LeafIndex = %d, want 3", got)
	}
	lo, hi := s.ChunkRange(9)
	if lo != 9*1024*1024 || hi != 10*1024*1024 {
		t.Errorf("ChunkRange(9) = [%d,%d)", lo, hi)
	}
}

func BenchmarkForContent(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = ForContent(10*1024*1024, 1024*1024)
	}
}

func BenchmarkAncestorsOf(b *testing.B) {
	s, _ := ForContent(1<<30, 1<<16)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.AncestorsOf(12345, func(int64) bool { return true })
	}
}
