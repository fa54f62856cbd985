// Package w25n drives Winbond W25N04KV serial NAND flash and recovers the
// bounds of a packet log stored on it.
//
// Commands are built as Instructions, encoded into bus phases and run on a
// qspi.Bus. Operations that touch the array (page read, program, erase)
// leave the chip BUSY; the next command polls the status register until it
// clears.
//
// # References:
//
// FTDI (https://ftdichip.com/document/application-notes/)
//   - [FTDI-AN_108]: Command Processor for MPSSE and MCU Host Bus Emulation Modes (https://ftdichip.com/wp-content/uploads/2020/08/AN_108_Command_Processor_for_MPSSE_and_MCU_Host_Bus_Emulation_Modes.pdf)
//   - [FTDI-AN_114]: Interfacing FT2232H Hi-Speed Devices To SPI Bus (https://ftdichip.com/wp-content/uploads/2020/08/AN_114_FTDI_Hi_Speed_USB_To_SPI_Example.pdf)
//
// SPI NAND Flash
//   - [W25N04KV]: W25N04KVxxIR/U 3V 4G-bit Serial SLC NAND Flash Memory (https://www.winbond.com/hq/product/code-storage-flash-memory/qspinand-flash/)
//   - [W25N01GV]: W25N01GVxxIG/IT 3V 1G-bit Serial SLC NAND Flash Memory
//   - [W25N02KV]: W25N02KVxxIR/U 3V 2G-bit Serial SLC NAND Flash Memory
package w25n
