package slots

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/slotjit/internal/codegen"
)

// ShellModule is the name of the top-level module of a composite image.
const ShellModule = "program_logic"

// compositeLocked returns the text of every occupied slot, in slot order,
// followed by the shell that selects one of them by its app_num parameter.
func (s *Scheduler) compositeLocked() string {
	var occupied []int
	var b strings.Builder
	for i, sl := range s.slots {
		if sl.State == Free {
			continue
		}
		occupied = append(occupied, i)
		b.WriteString(sl.Text)
		b.WriteString("\n\n")
	}
	writeShell(&b, occupied)
	return b.String()
}

// Composite returns the text the next build would compile.
func (s *Scheduler) Composite() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compositeLocked()
}

func writeShell(b *strings.Builder, occupied []int) {
	fmt.Fprintf(b, "module %s(\n", ShellModule)
	b.WriteString(`  input wire clk,
  input wire reset,

  input wire         softreg_req_valid,
  input wire         softreg_req_isWrite,
  input wire[31:0]   softreg_req_addr,
  input wire[63:0]   softreg_req_data,

  output wire        softreg_resp_valid,
  output wire[63:0]  softreg_resp_data
);

  parameter app_num = 0;

  // Register module signals
  reg        valid_in;
  reg        write_in;
  reg        read_in;
  reg[13:0]  addr_in;
  reg[63:0]  data_in;

  wire       valid_out;
  wire[63:0] data_out;
  reg        valid_out_reg;
  reg[63:0]  data_out_reg;

  always @(posedge clk) begin
    if (reset) begin
      valid_in <= 1'b0;
      write_in <= 1'b0;
      read_in <= 1'b0;
      addr_in <= 14'b0;
      data_in <= 64'b0;
    end else begin
      valid_in <= softreg_req_valid;
      write_in <= softreg_req_valid & softreg_req_isWrite;
      read_in <= softreg_req_valid & ~softreg_req_isWrite;
      addr_in <= softreg_req_addr[16:3];
      data_in <= softreg_req_data;
    end

    if (reset) begin
      valid_out_reg <= 1'b0;
      data_out_reg <= 64'b0;
    end else begin
      valid_out_reg <= valid_out;
      data_out_reg <= data_out;
    end
  end

  assign softreg_resp_valid = valid_out_reg;
  assign softreg_resp_data = data_out_reg;

  // Module Instantiations:
  generate
`)
	for _, i := range occupied {
		fmt.Fprintf(b, "  if (app_num == %d) begin\n", i)
		fmt.Fprintf(b, "    %s m (\n", codegen.ModuleName(i))
		b.WriteString("      .__clk(clk),\n")
		b.WriteString("      .__in_read(write_in),\n")
		b.WriteString("      .__in_vid(addr_in),\n")
		b.WriteString("      .__in_data(data_in),\n")
		b.WriteString("      .__in_valid(valid_in),\n")
		b.WriteString("      .__out_data(data_out),\n")
		b.WriteString("      .__out_valid(valid_out)\n")
		b.WriteString("    );\n")
		b.WriteString("  end\n")
	}
	b.WriteString("  endgenerate\n")
	b.WriteString("endmodule\n")
}
