package main

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/juniuszhou/ckb-vm/decoder"
	"github.com/juniuszhou/ckb-vm/instructions"
	"github.com/juniuszhou/ckb-vm/memory"
	"github.com/juniuszhou/ckb-vm/vmerrors"
)

func newDisasmCommand() *cobra.Command {
	var raw bool
	var base uint64
	cmd := &cobra.Command{
		Use:   "disasm <program>",
		Short: "Print the decoded instructions of a program's executable segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if raw {
				return disasmRange(codeView(base, program), base, base+uint64(len(program)))
			}
			return disasmELF(args[0])
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "treat the program as a flat code image")
	cmd.Flags().Uint64Var(&base, "base", 0, "load address for --raw images")
	return cmd
}

func disasmELF(path string) error {
	f, err := elf.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", vmerrors.ErrInvalidElf, err)
	}
	defer f.Close()

	for _, s := range f.Sections {
		if s.Flags&elf.SHF_EXECINSTR == 0 || s.Type == elf.SHT_NOBITS {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return err
		}
		fmt.Printf("%s:\n", s.Name)
		if err := disasmRange(codeView(s.Addr, data), s.Addr, s.Addr+uint64(len(data))); err != nil {
			return err
		}
	}
	return nil
}

func codeView(base uint64, code []byte) memory.Memory {
	size := memory.RoundPageUp(base + uint64(len(code)))
	mem := memory.NewFlatMemory(size)
	_ = mem.StoreBytes(base, code)
	return mem
}

func disasmRange(mem memory.Memory, from uint64, to uint64) error {
	d := decoder.NewIMACDecoder()
	for pc := from; pc < to; {
		inst, err := d.Decode(mem, pc)
		if err != nil {
			if errors.Is(err, vmerrors.ErrInvalidInstruction) {
				fmt.Printf("%8x:\t<invalid>\n", pc)
				pc += 2
				continue
			}
			return err
		}
		fmt.Printf("%8x:\t%s\n", pc, instructions.Disassemble(inst, pc))
		pc += inst.Length()
		// blank line between basic blocks
		if instructions.IsBasicBlockEnd(inst.Op()) && pc < to {
			fmt.Println()
		}
	}
	return nil
}
