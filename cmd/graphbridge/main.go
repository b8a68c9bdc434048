// Package main provides the graphbridge CLI.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/graphbridge/delegate"
	"github.com/born-ml/graphbridge/internal/host"
	"github.com/born-ml/graphbridge/internal/host/interp"
	"github.com/born-ml/graphbridge/tensor"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("graphbridge %s\n", version)
	case "ops":
		for _, op := range delegate.ListSupportedOps() {
			fmt.Println(op)
		}
	case "demo":
		if err := demo(os.Args[2:]); err != nil {
			logrus.WithError(err).Fatal("demo failed")
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("graphbridge - accelerator delegate for host inference graphs")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  ops        List operators the delegate can take over")
	fmt.Println("  demo       Delegate a small graph and run it twice")
}

// demo builds out = floor(relu(a + b)). ADD and RELU run on the
// accelerator; FLOOR stays on the host.
func demo(args []string) error {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	backend := fs.String("backend", "reference", "Accelerator backend ("+strings.Join(delegate.Backends(), ", ")+")")
	verbose := fs.Bool("v", false, "Log delegate decisions")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	it := interp.New(interp.Options{Logger: logger})
	defer it.Close()

	a := it.AddTensor(tensor.New("a", tensor.Float32, tensor.Shape{1, 4}))
	b := it.AddTensor(tensor.New("b", tensor.Float32, tensor.Shape{1, 4}))
	sum := it.AddTensor(tensor.New("sum", tensor.Float32, tensor.Shape{1, 4}))
	act := it.AddTensor(tensor.New("relu", tensor.Float32, tensor.Shape{1, 4}))
	out := it.AddTensor(tensor.New("out", tensor.Float32, tensor.Shape{1, 4}))
	if _, err := it.AddBuiltin(host.BuiltinAdd, []int{a, b}, []int{sum}, host.ArithmeticParams{}); err != nil {
		return err
	}
	if _, err := it.AddBuiltin(host.BuiltinRelu, []int{sum}, []int{act}, nil); err != nil {
		return err
	}
	if _, err := it.AddBuiltin(host.BuiltinFloor, []int{act}, []int{out}, nil); err != nil {
		return err
	}
	it.SetInputs(a, b)
	it.SetOutputs(out)

	opts := delegate.DefaultOptions()
	opts.Logger = logger
	opts.Backend = *backend
	d, err := delegate.New(opts)
	if err != nil {
		return err
	}
	if err := it.ModifyGraphWithDelegate(d); err != nil {
		return err
	}
	if err := it.AllocateTensors(); err != nil {
		return err
	}

	inputs := [][2][]float32{
		{{1.5, -2, 3.25, 0}, {0.25, 1, -4, 7.9}},
		{{-1, -1, 10.5, 2}, {0.5, 3, 0.75, -2}},
	}
	for i, in := range inputs {
		copy(it.Input(0).AsFloat32(), in[0])
		copy(it.Input(1).AsFloat32(), in[1])
		if err := it.Invoke(); err != nil {
			return err
		}
		fmt.Printf("run %d: floor(relu(%v + %v)) = %v\n", i+1, in[0], in[1], it.Output(0).AsFloat32())
	}
	return nil
}
