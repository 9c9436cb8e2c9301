package admin

import "testing"

func TestHumanizeSizes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "mntr",
			in:   "zk_version\tdev\nzk_approximate_data_size\t2048\nzk_znode_count\t4\n",
			want: "zk_version\tdev\nzk_approximate_data_size\t2.0 KiB\nzk_znode_count\t4\n",
		},
		{
			name: "dirs",
			in:   "snapshot_dir_size: 1048576\nlog_dir_size: 0\n",
			want: "snapshot_dir_size: 1.0 MiB\nlog_dir_size: 0 B\n",
		},
		{
			name: "not a number",
			in:   "zk_latest_snapshot_size\tunknown\n",
			want: "zk_latest_snapshot_size\tunknown\n",
		},
		{
			name: "plain text",
			in:   "imok",
			want: "imok",
		},
		{
			name: "no trailing newline",
			in:   "log_dir_size: 1536",
			want: "log_dir_size: 1.5 KiB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := humanizeSizes(tt.in); got != tt.want {
				t.Errorf("humanizeSizes(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
