package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-debugger/dbgsvc"
	"github.com/wippyai/wasm-debugger/debugger"
	"github.com/wippyai/wasm-debugger/wasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	currentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#444444"))

	bpStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FF6B6B"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const disasmWindow = 24

type debugModel struct {
	svc      *dbgsvc.Service
	filename string

	viewFunc uint32 // function shown in the disassembly pane
	cursor   int    // cursor within the shown function
	status   string
	errMsg   string

	memInput     textinput.Model
	inputtingMem bool
	memDump      string
}

func runInteractive(svc *dbgsvc.Service, filename string) error {
	ti := textinput.New()
	ti.Placeholder = "memory offset (e.g. 0x100)"
	ti.CharLimit = 18
	m := &debugModel{svc: svc, filename: filename, status: "ready", memInput: ti}
	m.syncToPosition()
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m *debugModel) Init() tea.Cmd {
	return nil
}

// syncToPosition moves the disassembly view and cursor to the current
// execution position, when one exists.
func (m *debugModel) syncToPosition() error {
	pos, err := m.svc.Session().Position()
	if err != nil {
		return err
	}
	m.viewFunc = pos.FuncIndex
	m.cursor = int(pos.InstrIndex)
	return nil
}

func (m *debugModel) runAndSync(mode debugger.RunMode) {
	m.errMsg = ""
	reply := m.svc.RunCode(mode)
	switch reply.Status {
	case dbgsvc.StatusFinish:
		m.status = "finished"
	case dbgsvc.StatusNOK:
		m.errMsg = reply.ErrorReason
		m.status = m.svc.Session().State().String()
	default:
		m.status = m.svc.Session().State().String()
	}
	m.syncToPosition()
}

func (m *debugModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.inputtingMem {
		switch key.String() {
		case "enter":
			m.inputtingMem = false
			m.memInput.Blur()
			m.showMemory(m.memInput.Value())
		case "esc":
			m.inputtingMem = false
			m.memInput.Blur()
		default:
			var cmd tea.Cmd
			m.memInput, cmd = m.memInput.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	switch key.String() {
	case "m":
		m.inputtingMem = true
		m.memInput.SetValue("")
		m.memInput.Focus()
		return m, textinput.Blink
	case "q", "ctrl+c":
		return m, tea.Quit

	case "r":
		m.runAndSync(debugger.ModeStart)
	case "s":
		m.runAndSync(debugger.ModeStep)
	case "n":
		m.runAndSync(debugger.ModeStepOver)
	case "f":
		m.runAndSync(debugger.ModeStepOut)
	case "c":
		m.runAndSync(debugger.ModeContinue)

	case "R":
		m.errMsg = ""
		if reply := m.svc.Reset(); reply.Status != dbgsvc.StatusOK {
			m.errMsg = reply.ErrorReason
		}
		m.status = m.svc.Session().State().String()

	case "b":
		m.toggleBreakpoint()

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.instructions())-1 {
			m.cursor++
		}
	case "left", "h":
		if m.viewFunc > 0 {
			m.viewFunc--
			m.cursor = 0
		}
	case "right", "l":
		mod := m.svc.Session().Module()
		if mod != nil && int(m.viewFunc) < mod.NumFuncs()-1 {
			m.viewFunc++
			m.cursor = 0
		}
	}
	return m, nil
}

func (m *debugModel) instructions() []wasm.Instruction {
	return m.svc.Session().Instructions(m.viewFunc)
}

func (m *debugModel) toggleBreakpoint() {
	m.errMsg = ""
	list := m.svc.ListBreakpoints()
	for _, bp := range list.Breakpoints {
		if bp.FuncIndex == m.viewFunc && bp.InstrIndex == uint32(m.cursor) {
			if reply := m.svc.DeleteBreakpoint(bp.Index); reply.Status != dbgsvc.StatusOK {
				m.errMsg = reply.ErrorReason
			}
			return
		}
	}
	m.svc.AddBreakpoint(m.viewFunc, uint32(m.cursor))
}

func (m *debugModel) View() string {
	var b strings.Builder

	funcName := ""
	if mod := m.svc.Session().Module(); mod != nil {
		funcName = mod.FuncName(m.viewFunc)
	}
	if funcName == "" {
		funcName = fmt.Sprintf("func[%d]", m.viewFunc)
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf(" wasmdbg  %s  %s ", m.filename, funcName)))
	b.WriteString("\n\n")

	left := m.renderDisassembly()
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderCallStack(),
		m.renderValueStack(),
		m.renderLocals(),
		m.renderGlobals(),
	)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(52).Render(left),
		right,
	))
	b.WriteString("\n")

	if m.inputtingMem {
		b.WriteString(m.memInput.View())
		b.WriteString("\n")
	}
	if m.memDump != "" {
		b.WriteString(m.memDump)
		b.WriteString("\n")
	}
	if m.errMsg != "" {
		b.WriteString(errorStyle.Render("error: " + m.errMsg))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render(fmt.Sprintf(
		"[%s]  r run  s step  n next  f finish  c continue  b breakpoint  m memory  R reset  ↑↓ cursor  ←→ function  q quit",
		m.status)))
	b.WriteString("\n")
	return b.String()
}

// showMemory renders a hex dump of up to 64 bytes at the given offset,
// clamped to the end of linear memory.
func (m *debugModel) showMemory(input string) {
	m.memDump = ""
	m.errMsg = ""
	offset, err := strconv.ParseUint(strings.TrimSpace(input), 0, 32)
	if err != nil {
		m.errMsg = fmt.Sprintf("bad offset %q", input)
		return
	}
	size, err := m.svc.Session().MemorySize()
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	if offset >= uint64(size) {
		m.errMsg = fmt.Sprintf("offset %#x beyond memory size %d", offset, size)
		return
	}
	length := uint32(64)
	if remaining := uint64(size) - offset; remaining < 64 {
		length = uint32(remaining)
	}
	reply := m.svc.GetMemory(uint32(offset), length)
	if reply.Status != dbgsvc.StatusOK {
		m.errMsg = reply.ErrorReason
		return
	}
	var b strings.Builder
	for i := 0; i < len(reply.Data); i += 16 {
		b.WriteString(fmt.Sprintf("%08x  ", offset+uint64(i)))
		for j := i; j < i+16 && j < len(reply.Data); j++ {
			b.WriteString(fmt.Sprintf("%02x ", reply.Data[j]))
		}
		b.WriteString("\n")
	}
	m.memDump = b.String()
}

func (m *debugModel) renderDisassembly() string {
	instrs := m.instructions()
	if instrs == nil {
		return helpStyle.Render("(imported or unknown function)")
	}

	var pcFunc uint32
	pcInstr := -1
	if pos, err := m.svc.Session().Position(); err == nil {
		pcFunc = pos.FuncIndex
		pcInstr = int(pos.InstrIndex)
	}

	bps := map[int]bool{}
	for _, bp := range m.svc.ListBreakpoints().Breakpoints {
		if bp.FuncIndex == m.viewFunc {
			bps[int(bp.InstrIndex)] = true
		}
	}

	start := 0
	if m.cursor > disasmWindow/2 {
		start = m.cursor - disasmWindow/2
	}
	end := start + disasmWindow
	if end > len(instrs) {
		end = len(instrs)
		if end-disasmWindow > 0 {
			start = end - disasmWindow
		} else {
			start = 0
		}
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("Disassembly"))
	b.WriteString("\n")
	for i := start; i < end; i++ {
		marker := "  "
		if bps[i] {
			marker = bpStyle.Render("● ")
		}
		line := fmt.Sprintf("%4d  %s", i, instrs[i].String())
		switch {
		case pcFunc == m.viewFunc && i == pcInstr:
			line = currentStyle.Render(line)
		case i == m.cursor:
			line = cursorStyle.Render(line)
		}
		b.WriteString(marker)
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m *debugModel) renderCallStack() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Call stack"))
	b.WriteString("\n")
	reply := m.svc.GetCallStack()
	if reply.Status != dbgsvc.StatusOK {
		b.WriteString(helpStyle.Render("(not running)"))
		b.WriteString("\n")
		return b.String()
	}
	for i, e := range reply.Stack {
		name := e.FuncName
		if name == "" {
			name = fmt.Sprintf("func[%d]", e.FuncIndex)
		}
		b.WriteString(fmt.Sprintf("#%d %s @%d\n", i, name, e.InstrIndex))
	}
	return b.String()
}

func (m *debugModel) renderValueStack() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Value stack"))
	b.WriteString("\n")
	reply := m.svc.GetValueStack()
	if reply.Status != dbgsvc.StatusOK {
		b.WriteString(helpStyle.Render("(not running)"))
		b.WriteString("\n")
		return b.String()
	}
	if len(reply.Values) == 0 {
		b.WriteString(helpStyle.Render("(empty)"))
		b.WriteString("\n")
		return b.String()
	}
	for i := len(reply.Values) - 1; i >= 0; i-- {
		b.WriteString(valueStyle.Render(reply.Values[i].Display))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *debugModel) renderLocals() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Locals"))
	b.WriteString("\n")
	reply := m.svc.GetLocal(0)
	if reply.Status != dbgsvc.StatusOK {
		b.WriteString(helpStyle.Render("(not running)"))
		b.WriteString("\n")
		return b.String()
	}
	for i, l := range reply.Locals {
		name := l.Name
		if name == "" {
			name = fmt.Sprintf("%d", i)
		}
		b.WriteString(fmt.Sprintf("%-8s %s\n", name, valueStyle.Render(l.Value.Display)))
	}
	return b.String()
}

func (m *debugModel) renderGlobals() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Globals"))
	b.WriteString("\n")
	reply := m.svc.GetGlobal()
	if reply.Status != dbgsvc.StatusOK {
		b.WriteString(helpStyle.Render("(not running)"))
		b.WriteString("\n")
		return b.String()
	}
	if len(reply.Globals) == 0 {
		b.WriteString(helpStyle.Render("(none)"))
		b.WriteString("\n")
		return b.String()
	}
	for i, g := range reply.Globals {
		b.WriteString(fmt.Sprintf("%-4d %s\n", i, valueStyle.Render(g.Display)))
	}
	return b.String()
}
