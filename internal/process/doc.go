// Package process supervises long-running child processes, chiefly the
// animation renderer that lumend delegates frame generation to.
//
// A Manager owns one child: it spawns it in its own process group, drains
// or hands off its pipes, restarts it on crash with exponential backoff,
// and tears it down with SIGTERM then SIGKILL on Stop. An optional health
// probe kills and restarts a child that is alive but hung.
//
// Children fall into two kinds. Plain children have stdout and stderr
// drained into the daemon log. Data-stream children set Config.AttachIO
// and receive the stdin and stdout pipes directly after every start, so a
// restarted renderer is transparently re-plumbed into the frame pump.
//
//	mgr := process.NewManager(process.Config{
//	    Name:               "render-wave",
//	    Binary:             "/usr/lib/lumen/render",
//	    Args:               []string{"wave", "105"},
//	    RestartOnFailure:   true,
//	    RestartDelay:       2 * time.Second,
//	    MaxRestartAttempts: 5,
//	    AttachIO:           pump.Attach,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
