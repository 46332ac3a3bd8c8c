//go:build unit

package driver

import "testing"

func TestEncodePTE(t *testing.T) {
	tests := []struct {
		addr     uint64
		writable bool
		want     uint32
	}{
		{0x1000, false, 0x11},
		{0x1000, true, 0x13},
		{0xff_ffff_f000, true, 0xfffffff3},
		{0x12345000, true, 0x123453},
	}
	for _, tt := range tests {
		got := EncodePTE(tt.addr, tt.writable)
		if got != tt.want {
			t.Errorf("EncodePTE(0x%x, %v) = 0x%x, want 0x%x", tt.addr, tt.writable, got, tt.want)
		}
		addr, valid, writable := DecodePTE(got)
		if addr != tt.addr || !valid || writable != tt.writable {
			t.Errorf("DecodePTE(0x%x) = 0x%x %v %v", got, addr, valid, writable)
		}
	}
}

func TestTableHandle(t *testing.T) {
	if h := TableHandle(0x12345600); h != 0x123456 {
		t.Errorf("TableHandle = 0x%x, want 0x123456", h)
	}
	if a := TableAddr(0x123456); a != 0x12345600 {
		t.Errorf("TableAddr = 0x%x, want 0x12345600", a)
	}
}

func TestInterruptMasks(t *testing.T) {
	if IntrErrorMask&(IntrPongSync|IntrFence|IntrPongAsync) != 0 {
		t.Error("error mask must not contain completion bits")
	}
	for tlb := uint(0); tlb < 9; tlb++ {
		if IntrPageFault(tlb)&IntrErrorMask == 0 {
			t.Errorf("page fault of TLB %d not treated as an error", tlb)
		}
	}
	if IntrFEError&IntrErrorMask == 0 {
		t.Error("FE error not treated as an error")
	}
}
