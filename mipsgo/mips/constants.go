package mips

const (
	// Linux O32 ABI syscall numbers, as issued by the guest program.
	SysMmap      = 4090
	SysBrk       = 4045
	SysClone     = 4120
	SysExitGroup = 4246
	SysRead      = 4003
	SysWrite     = 4004
	SysFcntl     = 4055

	FdStdin         = 0
	FdStdout        = 1
	FdStderr        = 2
	FdHintRead      = 3
	FdHintWrite     = 4
	FdPreimageRead  = 5
	FdPreimageWrite = 6

	// errno values returned to the guest through register A3
	SysErrorSignal = ^uint32(0)
	MipsEBADF      = uint32(0x9)
	MipsEINVAL     = uint32(0x16)

	// Register indices by O32 convention.
	RegZero = 0
	RegV0   = 2
	RegA0   = 4
	RegA1   = 5
	RegA2   = 6
	RegA3   = 7
	RegSP   = 29
	RegRA   = 31
)
