package fsbus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matrixbuilderops/solominerd/model"
)

func TestCommandChannel(t *testing.T) {
	t.Run("send_receive_ack", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "command.json")
		channel := NewCommandChannel(path)

		if err := channel.Send(model.NewCommand(model.CmdPause)); err != nil {
			t.Fatal(err)
		}

		cmd, err := channel.Receive()
		if err != nil {
			t.Fatal(err)
		}
		if cmd == nil || cmd.Command != model.CmdPause {
			t.Fatalf("received %+v", cmd)
		}

		if err := channel.Ack(); err != nil {
			t.Fatal(err)
		}
		cmd, err = channel.Receive()
		if err != nil || cmd != nil {
			t.Errorf("channel not empty after ack: %+v, %v", cmd, err)
		}
	})

	t.Run("empty_channel", func(t *testing.T) {
		channel := NewCommandChannel(filepath.Join(t.TempDir(), "command.json"))
		cmd, err := channel.Receive()
		if err != nil || cmd != nil {
			t.Errorf("expected (nil, nil), got (%+v, %v)", cmd, err)
		}
		// Acking an empty channel is harmless.
		if err := channel.Ack(); err != nil {
			t.Errorf("ack on empty channel: %v", err)
		}
	})

	t.Run("redelivered_until_acked", func(t *testing.T) {
		channel := NewCommandChannel(filepath.Join(t.TempDir(), "command.json"))
		if err := channel.Send(model.NewCommand(model.CmdMineInstant)); err != nil {
			t.Fatal(err)
		}

		for i := 0; i < 3; i++ {
			cmd, err := channel.Receive()
			if err != nil {
				t.Fatal(err)
			}
			if cmd == nil || cmd.Command != model.CmdMineInstant {
				t.Fatalf("delivery %d: %+v", i, cmd)
			}
		}
	})

	t.Run("newest_command_wins", func(t *testing.T) {
		channel := NewCommandChannel(filepath.Join(t.TempDir(), "command.json"))
		if err := channel.Send(model.NewCommand(model.CmdPause)); err != nil {
			t.Fatal(err)
		}
		if err := channel.Send(model.NewCommand(model.CmdStop)); err != nil {
			t.Fatal(err)
		}

		cmd, err := channel.Receive()
		if err != nil {
			t.Fatal(err)
		}
		if cmd.Command != model.CmdStop {
			t.Errorf("got %s, want %s", cmd.Command, model.CmdStop)
		}
	})

	t.Run("malformed_file_deleted", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "command.json")
		if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
			t.Fatal(err)
		}

		channel := NewCommandChannel(path)
		if _, err := channel.Receive(); err == nil {
			t.Fatal("malformed command not reported")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("malformed command file not deleted")
		}
	})

	t.Run("unknown_kind_deleted", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "command.json")
		if err := os.WriteFile(path, []byte(`{"command":"explode"}`), 0644); err != nil {
			t.Fatal(err)
		}

		channel := NewCommandChannel(path)
		if _, err := channel.Receive(); err == nil {
			t.Fatal("unknown command not reported")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("unknown command file not deleted")
		}
	})

	t.Run("send_rejects_unknown_kind", func(t *testing.T) {
		channel := NewCommandChannel(filepath.Join(t.TempDir(), "command.json"))
		if err := channel.Send(&model.Command{Command: "explode"}); err == nil {
			t.Error("unknown command kind accepted for sending")
		}
	})
}
