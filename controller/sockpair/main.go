// Command sockpair connects two processes with a socket
// controller and runs a short RMI and collective session.
//
// Start a server and then a client:
//
//	sockpair -role server -addr 127.0.0.1:18500
//	sockpair -role client -addr 127.0.0.1:18500
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/unixpickle/essentials"

	"github.com/Kitware/VTK-sub105/comm"
	"github.com/Kitware/VTK-sub105/controller"
)

const greetingTag = 100

func main() {
	configPath := configFlag()
	cfg, err := LoadConfig(configPath)
	essentials.Must(err)
	cfg.AddFlags(flag.CommandLine)
	flag.Parse()
	defer glog.Flush()

	ctrl := controller.NewSocket(cfg.Communicator())
	defer ctrl.Finalize()
	controller.SetGlobal(ctrl.Controller)

	switch cfg.Role {
	case "server":
		glog.Infof("waiting for a client on %s", cfg.Address)
		essentials.Must(ctrl.WaitForConnection(cfg.Address, cfg.AcceptTimeout))
	case "client":
		essentials.Must(ctrl.ConnectTo(cfg.Address))
	default:
		glog.Fatalf("unknown role: %q", cfg.Role)
	}

	compliant := ctrl.CompliantController()
	rank := compliant.LocalProcessID()
	if rank == 0 {
		essentials.Must(compliant.TriggerRMI(1, []byte("hello from the server"), greetingTag))
		essentials.Must(compliant.TriggerBreakRMIs())
	} else {
		compliant.AddRMI(greetingTag, func(arg []byte, remoteProcessID int) {
			fmt.Printf("rank %d says: %s\n", remoteProcessID, arg)
		})
		essentials.Must(compliant.ProcessRMIs(true, false))
	}
	essentials.Must(compliant.Barrier())

	sum := []float64{0}
	essentials.Must(comm.AllReduce(compliant.Communicator(), []float64{float64(rank + 1)}, sum, comm.Sum))
	fmt.Printf("rank %d: sum of ranks plus one is %v\n", rank, sum[0])
}

// configFlag finds the -config flag before the rest of the
// flags are registered, so the file can provide defaults.
func configFlag() string {
	for i, arg := range os.Args[1:] {
		if arg == "-config" || arg == "--config" {
			if i+2 < len(os.Args) {
				path := os.Args[i+2]
				os.Args = append(os.Args[:i+1], os.Args[i+3:]...)
				return path
			}
		}
	}
	return ""
}
