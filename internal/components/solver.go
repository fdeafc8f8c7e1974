package components

import (
	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/danmuck/nodectl/internal/signal"
	"github.com/danmuck/nodectl/internal/tree"
)

const (
	PropMaxIterations = "max_iterations"
	PropTolerance     = "tolerance"
)

// Solver reports its configuration when solved. It runs no numerics.
type Solver struct {
	node *tree.Node
	runs int64
}

// NewSolverNode builds a Solver with default properties and its solve signal.
func NewSolverNode(name string) *tree.Node {
	s := &Solver{}
	n := tree.NewBuilt(name, TypeSolver, s)
	s.node = n
	n.Properties().SetInt(PropMaxIterations, 100)
	n.Properties().SetFloat(PropTolerance, 1e-6)
	n.Signals().MustRegister("solve", "run the solver once and report its settings", s.solve)
	n.Signals().MustRegister("reset", "clear the run counter", s.reset)
	return n
}

// Runs returns how many times solve has completed.
func (s *Solver) Runs() int64 { return s.runs }

func (s *Solver) solve(req *signal.Frame) (*signal.Frame, error) {
	props := s.node.Properties()
	maxIter, err := props.Int(PropMaxIterations)
	if err != nil {
		return nil, err
	}
	tol, err := props.Float(PropTolerance)
	if err != nil {
		return nil, err
	}
	if req.Options.Has(PropMaxIterations) {
		if maxIter, err = req.Options.Int(PropMaxIterations); err != nil {
			return nil, err
		}
	}
	if maxIter <= 0 {
		return nil, nodeerr.New(nodeerr.BadArgument, "solve", "%s must be positive, got %d", PropMaxIterations, maxIter)
	}
	s.runs++
	reply := signal.NewReply(req)
	reply.Options.SetInt("run", s.runs)
	reply.Options.SetInt(PropMaxIterations, maxIter)
	reply.Options.SetFloat(PropTolerance, tol)
	return reply, nil
}

func (s *Solver) reset(req *signal.Frame) (*signal.Frame, error) {
	s.runs = 0
	return nil, nil
}
