// Package vm - debugger support
package vm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/blade-lang/blade/pkg/bytecode"
	"github.com/blade-lang/blade/pkg/value"
)

// Debugger provides interactive debugging capabilities for the VM, driven
// by runLoop checking ShouldPause once per instruction when attached (the
// `-d` CLI flag). Breakpoints are keyed by instruction index within the
// Blob currently executing, matching the granularity the compiler's own
// disassembler works at.
type Debugger struct {
	vm          *VM
	breakpoints map[int]bool
	stepMode    bool
	enabled     bool
}

// NewDebugger creates a new debugger instance and attaches it to vm.
func NewDebugger(vm *VM) *Debugger {
	d := &Debugger{vm: vm, breakpoints: make(map[int]bool)}
	vm.debugger = d
	return d
}

func (d *Debugger) Enable()                   { d.enabled = true }
func (d *Debugger) Disable()                  { d.enabled = false }
func (d *Debugger) SetStepMode(enabled bool)  { d.stepMode = enabled }
func (d *Debugger) AddBreakpoint(ip int)      { d.breakpoints[ip] = true }
func (d *Debugger) RemoveBreakpoint(ip int)   { delete(d.breakpoints, ip) }
func (d *Debugger) ClearBreakpoints()         { d.breakpoints = make(map[int]bool) }

// ShouldPause checks whether runLoop should hand control to the
// interactive prompt before executing the instruction at the current
// frame's ip.
func (d *Debugger) ShouldPause() bool {
	if !d.enabled || len(d.vm.frames) == 0 {
		return false
	}
	if d.stepMode {
		return true
	}
	return d.breakpoints[d.vm.currentFrame().ip]
}

func (d *Debugger) currentBlob() *bytecode.Blob {
	if len(d.vm.frames) == 0 {
		return nil
	}
	return d.vm.currentFrame().closure.Function.Blob
}

func (d *Debugger) ShowCurrentInstruction() {
	blob := d.currentBlob()
	frame := d.vm.currentFrame()
	if blob == nil || frame.ip >= len(blob.Code) {
		fmt.Println("no current instruction")
		return
	}
	inst := blob.Code[frame.ip]
	fmt.Printf("  %4d: %s", frame.ip, color.CyanString(inst.Op.String()))
	formatOperand(inst, blob)
	fmt.Println()
}

func formatOperand(inst bytecode.Instruction, blob *bytecode.Blob) {
	switch inst.Op {
	case bytecode.OpInvoke, bytecode.OpSuperInvoke, bytecode.OpInvokeSelf:
		nameIdx, argc := bytecode.UnpackIndexArgc(inst.Operand)
		fmt.Printf(" name=%d argc=%d", nameIdx, argc)
		if nameIdx < len(blob.Constants) {
			fmt.Printf(" (%s)", value.ToString(blob.Constants[nameIdx]))
		}
	case bytecode.OpTry:
		c, f := bytecode.UnpackJumpPair(inst.Operand)
		fmt.Printf(" catch=%d finally=%d", c, f)
	default:
		if inst.Operand != 0 {
			fmt.Printf(" %d", inst.Operand)
			if (inst.Op == bytecode.OpConst || inst.Op == bytecode.OpGetGlobal ||
				inst.Op == bytecode.OpSetGlobal || inst.Op == bytecode.OpDefineGlobal ||
				inst.Op == bytecode.OpGetProperty || inst.Op == bytecode.OpSetProperty ||
				inst.Op == bytecode.OpGetSelfProperty || inst.Op == bytecode.OpClass ||
				inst.Op == bytecode.OpMethod || inst.Op == bytecode.OpField ||
				inst.Op == bytecode.OpStaticField) && inst.Operand < len(blob.Constants) {
				fmt.Printf(" (%s)", value.ToString(blob.Constants[inst.Operand]))
			}
		}
	}
}

func (d *Debugger) ShowStack() {
	fmt.Println("stack (top to bottom):")
	if len(d.vm.stack) == 0 {
		fmt.Println("  (empty)")
		return
	}
	for i := len(d.vm.stack) - 1; i >= 0; i-- {
		fmt.Printf("  [%d] %s\n", i, value.ToString(d.vm.stack[i]))
	}
}

func (d *Debugger) ShowLocals() {
	frame := d.vm.currentFrame()
	fmt.Println("locals (current frame):")
	numLocals := frame.closure.Function.Blob.NumLocals
	for i := 0; i < numLocals; i++ {
		idx := frame.slotBase + i
		if idx >= len(d.vm.stack) {
			break
		}
		fmt.Printf("  [%d] %s\n", i, value.ToString(d.vm.stack[idx]))
	}
}

func (d *Debugger) ShowGlobals() {
	fmt.Println("globals:")
	if len(d.vm.globals) == 0 {
		fmt.Println("  (none)")
		return
	}
	for name, v := range d.vm.globals {
		fmt.Printf("  %s = %s\n", name, value.ToString(v))
	}
}

func (d *Debugger) ShowCallStack() {
	fmt.Println("call stack (top to bottom):")
	if len(d.vm.frames) == 0 {
		fmt.Println("  (empty)")
		return
	}
	for i := len(d.vm.frames) - 1; i >= 0; i-- {
		f := d.vm.frames[i]
		fmt.Printf("  %s [ip=%d]\n", fnName(f.closure.Function), f.ip)
	}
}

// InteractivePrompt pauses execution and hands the terminal to the user.
// runLoop calls this once per instruction while ShouldPause is true.
func (d *Debugger) InteractivePrompt() (continueExecution bool) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("\n=== debugger paused ===")
	d.ShowCurrentInstruction()

	for {
		fmt.Print("debug> ")
		if !scanner.Scan() {
			return false
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		switch parts[0] {
		case "help", "h", "?":
			d.printHelp()
		case "continue", "c":
			d.SetStepMode(false)
			return true
		case "step", "s", "next", "n":
			d.SetStepMode(true)
			return true
		case "stack", "st":
			d.ShowStack()
		case "locals", "l":
			d.ShowLocals()
		case "globals", "g":
			d.ShowGlobals()
		case "callstack", "cs":
			d.ShowCallStack()
		case "instruction", "i":
			d.ShowCurrentInstruction()
		case "break", "b":
			if len(parts) < 2 {
				fmt.Println("usage: break <instruction index>")
				continue
			}
			ip, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("invalid instruction index")
				continue
			}
			d.AddBreakpoint(ip)
			fmt.Printf("breakpoint set at %d\n", ip)
		case "delete", "d":
			if len(parts) < 2 {
				fmt.Println("usage: delete <instruction index>")
				continue
			}
			ip, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("invalid instruction index")
				continue
			}
			d.RemoveBreakpoint(ip)
		case "list", "ls":
			d.listInstructions()
		case "quit", "q":
			return false
		default:
			fmt.Printf("unknown command: %s (type 'help')\n", parts[0])
		}
	}
}

func (d *Debugger) printHelp() {
	fmt.Println(`debugger commands:
  help, h, ?        show this help
  continue, c       resume execution
  step, s, next, n  execute one instruction and pause again
  stack, st         show the value stack
  locals, l         show current frame locals
  globals, g        show globals
  callstack, cs     show the call-frame stack
  instruction, i    show the current instruction
  break, b <n>      set a breakpoint at instruction n
  delete, d <n>     remove a breakpoint at instruction n
  list, ls          list every instruction in the current frame's code
  quit, q           abort execution`)
}

func (d *Debugger) listInstructions() {
	blob := d.currentBlob()
	if blob == nil {
		return
	}
	frame := d.vm.currentFrame()
	for i, inst := range blob.Code {
		marker := "  "
		if i == frame.ip {
			marker = "->"
		} else if d.breakpoints[i] {
			marker = "* "
		}
		fmt.Printf("%s %4d: %s", marker, i, inst.Op)
		formatOperand(inst, blob)
		fmt.Println()
	}
}
