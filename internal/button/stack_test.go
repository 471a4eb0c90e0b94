package button

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestStack_PopAtRootIsNoop(t *testing.T) {
	root := NewRawPanel("root")
	root.Buttons[1] = Button{"a": json.RawMessage(`1`)}
	s := NewStack(root)
	top := s.Top()

	if s.Pop() {
		t.Error("Pop() at depth 1 = true, want false")
	}
	if s.Depth() != 1 || s.Top() != top {
		t.Error("Pop() at depth 1 changed the stack")
	}
}

func TestStack_ForcePopAtRootBlanks(t *testing.T) {
	root := NewRawPanel("root")
	root.Buttons[1] = Button{"a": json.RawMessage(`1`)}
	s := NewStack(root)

	s.ForcePop()

	if s.Depth() != 1 {
		t.Fatalf("Depth() = %d, want 1", s.Depth())
	}
	if keys := s.Top().Keys(); len(keys) != 0 {
		t.Errorf("root after ForcePop has keys %v, want none", keys)
	}
}

func TestStack_Navigation(t *testing.T) {
	s := NewStack(NewRawPanel("root"))
	a := NewPanel(NewRawPanel("a"))
	b := NewPanel(NewRawPanel("b"))

	s.Push(a)
	s.Push(b)
	if s.Top() != b || s.Depth() != 3 {
		t.Fatalf("after pushes: top=%q depth=%d", s.Top().DisplayName(), s.Depth())
	}

	c := NewPanel(NewRawPanel("c"))
	s.Replace(c)
	if s.Top() != c || s.Depth() != 3 {
		t.Errorf("Replace() did not swap top")
	}

	if !s.Pop() || s.Top() != a {
		t.Errorf("Pop() top = %q, want a", s.Top().DisplayName())
	}

	names := []string{}
	for _, raw := range s.Snapshot() {
		names = append(names, raw.DisplayName)
	}
	if len(names) != 2 || names[0] != "root" || names[1] != "a" {
		t.Errorf("Snapshot() names = %v", names)
	}

	fresh := NewPanel(NewRawPanel("fresh"))
	s.Reset(fresh)
	if s.Depth() != 1 || s.Root() != fresh {
		t.Error("Reset() did not install new root")
	}
}

func TestStack_CommitPropagatesNestedEdits(t *testing.T) {
	root := NewRawPanel("root")
	root.Buttons[0] = Button{}
	s := NewStack(root)

	opener, _ := s.Root().Button(0)
	sub := NewPanel(NewRawPanel("sub"))
	sub.SetCommitHook(func(raw RawPanel) {
		_ = opener.Update(func(b Button) error { return b.Set("folder", raw) })
	})
	s.Push(sub)

	sub.SetButton(3, NewUnique(Button{"renderer": json.RawMessage(`{"text":"inner"}`)}))

	out := s.Commit()
	folder, err := Get[RawPanel](out.Buttons[0], "folder")
	if err != nil {
		t.Fatalf("committed root has no folder: %v", err)
	}
	if _, ok := folder.Buttons[3]; !ok {
		t.Errorf("nested edit not propagated: %+v", folder)
	}
	if s.Depth() != 2 {
		t.Error("Commit() must not change navigation")
	}
}

// Stack operations for the property test.
const (
	opPush = iota
	opPop
	opForcePop
	opReplace
	opReset
	opCount
)

func TestStack_NeverEmptyProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("stack is never empty and non-forcible pop at depth 1 is a no-op",
		prop.ForAll(
			func(ops []int) bool {
				s := NewStack(NewRawPanel("root"))
				for _, op := range ops {
					before := s.Depth()
					beforeTop := s.Top()
					switch op {
					case opPush:
						s.Push(NewPanel(NewRawPanel("p")))
					case opPop:
						popped := s.Pop()
						if before == 1 && (popped || s.Top() != beforeTop) {
							return false
						}
					case opForcePop:
						s.ForcePop()
					case opReplace:
						s.Replace(NewPanel(NewRawPanel("r")))
					case opReset:
						s.Reset(NewPanel(NewRawPanel("root")))
					}
					if s.Depth() < 1 || s.Top() == nil {
						return false
					}
				}
				return true
			},
			gen.SliceOf(gen.IntRange(0, opCount-1)),
		))

	properties.TestingRun(t)
}
